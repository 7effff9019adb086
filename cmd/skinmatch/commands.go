package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veibelle/skinmatch/internal/config"
	"github.com/veibelle/skinmatch/internal/identity"
	"github.com/veibelle/skinmatch/internal/query"
	"github.com/veibelle/skinmatch/internal/recommend"
	"github.com/veibelle/skinmatch/internal/storage"
)

// Mirrors the server's quiz state payload.
type quizState struct {
	Step       int `json:"step"`
	TotalSteps int `json:"totalSteps"`
	Progress   int `json:"progress"`
	Profile    struct {
		SkinType    string   `json:"skinType"`
		Concerns    []string `json:"concerns"`
		ProductType string   `json:"productType"`
		Allergens   []string `json:"allergens"`
		EyeConcerns []string `json:"eyeConcerns"`
		Pregnancy   string   `json:"pregnancy"`
	} `json:"profile"`
}

type historyEntry struct {
	SessionID string `json:"sessionId"`
	Profile   struct {
		SkinType    string   `json:"skinType"`
		Concerns    []string `json:"concerns"`
		ProductType string   `json:"productType"`
	} `json:"profile"`
	Results   []recommend.Product `json:"results"`
	Timestamp time.Time           `json:"timestamp"`
	RemoteID  string              `json:"remoteId"`
}

func printQuizState(st quizState) {
	stepNames := []string{"", "Skin type", "Concerns", "Product type", "Allergens", "Eye concerns", "Pregnancy"}
	name := ""
	if st.Step > 0 && st.Step < len(stepNames) {
		name = stepNames[st.Step]
	}
	printStatus("Step", "%d/%d (%s, %d%%)", st.Step, st.TotalSteps, name, st.Progress)
	if st.Profile.SkinType != "" {
		printStatus("Skin type", "%s", st.Profile.SkinType)
	}
	if len(st.Profile.Concerns) > 0 {
		printStatus("Concerns", "%v", st.Profile.Concerns)
	}
	if st.Profile.ProductType != "" {
		printStatus("Product type", "%s", st.Profile.ProductType)
	}
	if len(st.Profile.Allergens) > 0 {
		printStatus("Allergens", "%v", st.Profile.Allergens)
	}
	if len(st.Profile.EyeConcerns) > 0 {
		printStatus("Eye concerns", "%v", st.Profile.EyeConcerns)
	}
	if st.Profile.Pregnancy != "" {
		printStatus("Pregnancy", "%s", st.Profile.Pregnancy)
	}
}

func printProducts(products []recommend.Product) {
	if len(products) == 0 {
		printWarning("No products matched your filters.")
		return
	}
	for i, p := range products {
		fmt.Printf("%2d. %s  %s (%.0f%% match)\n", i+1, colorize(colorBold, p.Name), p.Brand, p.Similarity*100)
	}
}

// --- quiz ---

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Walk through the skincare quiz",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get("/quiz")
		if err != nil {
			return err
		}
		var st quizState
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printQuizState(st)
		return nil
	},
}

// answerCmd builds a leaf command that sends {"value": args[0]} to path.
func answerCmd(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return sendAnswer(client, method, path, map[string]string{"value": args[0]})
		},
	}
}

func sendAnswer(client *apiClient, method, path string, body map[string]string) error {
	resp, err := client.do(method, path, body)
	if err != nil {
		return err
	}
	var st quizState
	if err := decodeJSON(resp, &st); err != nil {
		return err
	}
	printQuizState(st)
	return nil
}

func navCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return sendAnswer(client, "POST", path, nil)
		},
	}
}

var quizSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit the quiz and fetch recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post("/quiz/submit", nil)
		if err != nil {
			return err
		}

		var result struct {
			SessionID string              `json:"sessionId"`
			Results   []recommend.Product `json:"results"`
			Message   string              `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s recorded", result.SessionID)
		if result.Message != "" {
			printStep("%s", result.Message)
		}
		printProducts(result.Results)
		return nil
	},
}

func init() {
	quizCmd.AddCommand(answerCmd("skin-type <value>", "Set your skin type", "PUT", "/quiz/skin-type"))
	quizCmd.AddCommand(answerCmd("concern <value>", "Toggle a skin concern", "POST", "/quiz/concerns"))
	quizCmd.AddCommand(answerCmd("product-type <value>", "Set the product type you want", "PUT", "/quiz/product-type"))
	quizCmd.AddCommand(answerCmd("allergen <value>", "Toggle an ingredient to avoid", "POST", "/quiz/allergens"))
	quizCmd.AddCommand(answerCmd("custom-allergen <value>", "Add a free-text ingredient to avoid", "POST", "/quiz/allergens/custom"))
	quizCmd.AddCommand(answerCmd("eye-concern <value>", "Toggle an eye-area concern", "POST", "/quiz/eye-concerns"))
	quizCmd.AddCommand(answerCmd("pregnancy <Yes|No>", "Answer the pregnancy/nursing question", "PUT", "/quiz/pregnancy"))
	quizCmd.AddCommand(navCmd("next", "Advance to the next quiz step", "/quiz/next"))
	quizCmd.AddCommand(navCmd("back", "Go back one quiz step", "/quiz/back"))
	quizCmd.AddCommand(navCmd("retake", "Discard answers and restart the quiz", "/quiz/retake"))
	quizCmd.AddCommand(quizSubmitCmd)
}

// --- recommend (one-shot, bypasses the quiz and the local server) ---

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Fetch recommendations directly without the quiz",
	Long: `Fetch recommendations directly from the recommendation service.

Examples:
  skinmatch recommend --skin-type "Oily Skin" --product-type Cleanser --concerns "acne, uv protection"
  skinmatch recommend --concerns "Dryness / Dehydration" --pregnancy-safe yes --top-n 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		skinType, _ := cmd.Flags().GetString("skin-type")
		productType, _ := cmd.Flags().GetString("product-type")
		concerns, _ := cmd.Flags().GetString("concerns")
		allergens, _ := cmd.Flags().GetString("allergens")
		pregnancySafe, _ := cmd.Flags().GetString("pregnancy-safe")
		topN, _ := cmd.Flags().GetInt("top-n")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if topN == 0 {
			topN = cfg.Recommender.TopN
		}

		params := query.FromRaw(skinType, productType, concerns, allergens, pregnancySafe, topN)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.RecommenderTimeout())
		defer cancel()

		client := recommend.NewClient(cfg.Recommender.BaseURL, cfg.RecommenderTimeout())
		outcome := client.Fetch(ctx, params)
		if !outcome.OK() {
			printError("%s", outcome.Failure.Message)
			return fmt.Errorf("recommendation fetch failed")
		}

		if outcome.Note != "" {
			printStep("%s", outcome.Note)
		}
		printProducts(outcome.Products)
		return nil
	},
}

func init() {
	recommendCmd.Flags().String("skin-type", "", "skin type, e.g. \"Oily Skin\"")
	recommendCmd.Flags().String("product-type", "", "product type, e.g. Cleanser")
	recommendCmd.Flags().String("concerns", "", "comma- or slash-separated concerns")
	recommendCmd.Flags().String("allergens", "", "comma- or slash-separated ingredients to avoid")
	recommendCmd.Flags().String("pregnancy-safe", "", "yes or no")
	recommendCmd.Flags().Int("top-n", 0, "maximum number of results (default from config)")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded quiz sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")
		merged, _ := cmd.Flags().GetBool("merged")
		limit, _ := cmd.Flags().GetInt("limit")

		path := fmt.Sprintf("/history?limit=%d", limit)
		if merged {
			path = "/history/merged"
		} else if remote {
			path = "/history/remote"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(path)
		if err != nil {
			return err
		}
		var entries []historyEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			printWarning("No sessions recorded yet.")
			return nil
		}
		for _, e := range entries {
			id := e.SessionID
			if id == "" {
				id = "remote:" + e.RemoteID
			}
			fmt.Printf("%s  %s  %s / %s  (%d results)\n",
				e.Timestamp.Format("2006-01-02 15:04"),
				colorize(colorBold, id),
				e.Profile.SkinType, e.Profile.ProductType, len(e.Results))
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one recorded session in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get("/history/" + args[0])
		if err != nil {
			return err
		}
		var entry json.RawMessage
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}
		fmt.Println(string(entry))
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all locally recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete("/history")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
		printSuccess("Local history cleared")
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("remote", false, "list the history service's copy")
	historyCmd.Flags().Bool("merged", false, "merge local and remote history")
	historyCmd.Flags().Int("limit", 20, "maximum sessions to list")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the latest session and its recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get("/dashboard")
		if err != nil {
			return err
		}
		var entry historyEntry
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		printStatus("Session", "%s (%s)", entry.SessionID, entry.Timestamp.Format("2006-01-02 15:04"))
		printStatus("Skin type", "%s", entry.Profile.SkinType)
		printStatus("Product type", "%s", entry.Profile.ProductType)
		printProducts(entry.Results)
		return nil
	},
}

// --- account ---

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the signed-in account for history sync",
}

// withIdentity opens storage directly; sessions recorded while the
// server runs are picked up on its next read since nothing is cached.
func withIdentity(fn func(*identity.StoreProvider) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()
	return fn(identity.NewStoreProvider(store))
}

var accountSignInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in for remote history sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		userID, _ := cmd.Flags().GetString("user-id")
		if email == "" {
			return fmt.Errorf("--email is required")
		}
		return withIdentity(func(p *identity.StoreProvider) error {
			if err := p.SignIn(identity.Identity{Email: email, UserID: userID}); err != nil {
				return err
			}
			printSuccess("Signed in as %s", email)
			return nil
		})
	},
}

var accountSignOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out (local history is kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIdentity(func(p *identity.StoreProvider) error {
			if err := p.SignOut(); err != nil {
				return err
			}
			printSuccess("Signed out")
			return nil
		})
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIdentity(func(p *identity.StoreProvider) error {
			id, err := p.Current()
			if err != nil {
				printWarning("Not signed in; sessions stay local.")
				return nil
			}
			printStatus("Email", "%s", id.Email)
			if id.UserID != "" {
				printStatus("User ID", "%s", id.UserID)
			}
			return nil
		})
	},
}

func init() {
	accountSignInCmd.Flags().String("email", "", "account email")
	accountSignInCmd.Flags().String("user-id", "", "account user id")
	accountCmd.AddCommand(accountSignInCmd)
	accountCmd.AddCommand(accountSignOutCmd)
	accountCmd.AddCommand(accountShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
