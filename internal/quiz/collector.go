package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veibelle/skinmatch/internal/storage"
)

// StateStore is the slice of persistence the collector needs.
// Implemented by storage.Store.
type StateStore interface {
	SetState(key, value string) error
	GetState(key string) (string, error)
	RemoveState(key string) error
}

// Persisted state keys.
const (
	stateKeyStep    = "quiz.step"
	stateKeyProfile = "quiz.profile"
)

var (
	// ErrStepIncomplete means the current step's required answer is
	// missing. It gates the forward transition; it is not a fault.
	ErrStepIncomplete = errors.New("current step is incomplete")

	// ErrInvalidTransition means the event is not defined for the
	// current step (e.g. next past the last step).
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidAnswer means the value is outside the step's vocabulary.
	ErrInvalidAnswer = errors.New("answer not in vocabulary")

	// ErrDuplicateAllergen means the free-text allergen is already present.
	ErrDuplicateAllergen = errors.New("allergen already present")

	// ErrEmptyAllergen means the free-text allergen was blank after trimming.
	ErrEmptyAllergen = errors.New("allergen is empty")
)

// State is a snapshot of the questionnaire: the step being shown and
// the answers accumulated so far.
type State struct {
	Step    Step
	Profile Profile
}

// Progress returns the completion percentage shown alongside the step
// indicator (step/6, rounded).
func (s State) Progress() int {
	return int(float64(s.Step)/float64(TotalSteps)*100 + 0.5)
}

type transitionKey struct {
	from  Step
	event Event
}

// transitions is the full navigation table. An absent pair is an
// invalid transition; forward moves additionally require the guard of
// the departing step to hold.
var transitions = map[transitionKey]Step{
	{StepSkinType, EventNext}:    StepConcerns,
	{StepConcerns, EventNext}:    StepProductType,
	{StepProductType, EventNext}: StepAllergens,
	{StepAllergens, EventNext}:   StepEyeConcerns,
	{StepEyeConcerns, EventNext}: StepPregnancy,

	{StepConcerns, EventBack}:    StepSkinType,
	{StepProductType, EventBack}: StepConcerns,
	{StepAllergens, EventBack}:   StepProductType,
	{StepEyeConcerns, EventBack}: StepAllergens,
	{StepPregnancy, EventBack}:   StepEyeConcerns,
}

// guards holds the required-field predicate per step. Leaving a step
// forwards (or submitting from the last one) requires its guard.
var guards = map[Step]func(Profile) bool{
	StepSkinType:    func(p Profile) bool { return p.SkinType != "" },
	StepConcerns:    func(p Profile) bool { return len(p.Concerns) > 0 },
	StepProductType: func(p Profile) bool { return p.ProductType != "" },
	StepAllergens:   func(Profile) bool { return true },
	StepEyeConcerns: func(Profile) bool { return true },
	StepPregnancy:   func(p Profile) bool { return p.Pregnancy != PregnancyUnset },
}

// Collector walks a user through the questionnaire. It keeps no answer
// state in memory: every operation reads the persisted snapshot fresh,
// applies the change, and writes it back, so a process restart (or an
// external clear by the identity collaborator) is always honored.
type Collector struct {
	store  StateStore
	logger *slog.Logger
}

// NewCollector creates a Collector backed by the given store.
func NewCollector(store StateStore) *Collector {
	return &Collector{store: store, logger: slog.Default()}
}

// State loads the current questionnaire snapshot. A missing or
// malformed persisted state resolves to step 1 with empty answers
// rather than an error.
func (c *Collector) State() (State, error) {
	st := State{Step: StepSkinType}

	raw, err := c.store.GetState(stateKeyProfile)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Fresh start.
	case err != nil:
		return State{}, fmt.Errorf("loading quiz answers: %w", err)
	default:
		if err := json.Unmarshal([]byte(raw), &st.Profile); err != nil {
			c.logger.Warn("malformed persisted quiz answers, restarting quiz", "error", err)
			st.Profile = Profile{}
		}
	}

	stepRaw, err := c.store.GetState(stateKeyStep)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return State{}, fmt.Errorf("loading quiz step: %w", err)
	default:
		n, convErr := strconv.Atoi(stepRaw)
		if convErr != nil || n < int(StepSkinType) || n > int(StepPregnancy) {
			c.logger.Warn("malformed persisted quiz step, restarting quiz", "value", stepRaw)
		} else {
			st.Step = Step(n)
		}
	}

	return st, nil
}

func (c *Collector) persist(st State) error {
	b, err := json.Marshal(st.Profile)
	if err != nil {
		return fmt.Errorf("marshalling quiz answers: %w", err)
	}
	if err := c.store.SetState(stateKeyProfile, string(b)); err != nil {
		return fmt.Errorf("persisting quiz answers: %w", err)
	}
	if err := c.store.SetState(stateKeyStep, strconv.Itoa(int(st.Step))); err != nil {
		return fmt.Errorf("persisting quiz step: %w", err)
	}
	return nil
}

// Apply runs a navigation event through the transition table and
// persists the resulting step pointer. Forward moves are gated on the
// departing step's guard; back is never validated.
func (c *Collector) Apply(event Event) (State, error) {
	st, err := c.State()
	if err != nil {
		return State{}, err
	}

	if event == EventRetake {
		return c.reset()
	}

	if event == EventSubmit {
		// Submission does not navigate; Finalize owns it. Validate here
		// so callers probing the table get a coherent answer.
		if st.Step != StepPregnancy {
			return st, ErrInvalidTransition
		}
		if !guards[st.Step](st.Profile) {
			return st, ErrStepIncomplete
		}
		return st, nil
	}

	next, ok := transitions[transitionKey{st.Step, event}]
	if !ok {
		return st, ErrInvalidTransition
	}
	if event == EventNext && !guards[st.Step](st.Profile) {
		return st, ErrStepIncomplete
	}

	st.Step = next
	if err := c.persist(st); err != nil {
		return State{}, err
	}
	return st, nil
}

func (c *Collector) reset() (State, error) {
	st := State{Step: StepSkinType, Profile: Profile{}}
	if err := c.persist(st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Reset discards the in-progress answers and returns the questionnaire
// to step 1 (the "retake quiz" action, also used after a successful
// submission).
func (c *Collector) Reset() error {
	_, err := c.reset()
	return err
}

// mutate loads state, applies fn to the profile, and persists.
func (c *Collector) mutate(fn func(*Profile) error) (State, error) {
	st, err := c.State()
	if err != nil {
		return State{}, err
	}
	if err := fn(&st.Profile); err != nil {
		return st, err
	}
	if err := c.persist(st); err != nil {
		return State{}, err
	}
	return st, nil
}

// SetSkinType records the step-1 answer.
func (c *Collector) SetSkinType(v string) (State, error) {
	if !ValidSkinType(v) {
		return State{}, fmt.Errorf("%w: skin type %q", ErrInvalidAnswer, v)
	}
	return c.mutate(func(p *Profile) error {
		p.SkinType = v
		return nil
	})
}

// SetProductType records the step-3 answer.
func (c *Collector) SetProductType(v string) (State, error) {
	if !ValidProductType(v) {
		return State{}, fmt.Errorf("%w: product type %q", ErrInvalidAnswer, v)
	}
	return c.mutate(func(p *Profile) error {
		p.ProductType = v
		return nil
	})
}

// SetPregnancy records the step-6 answer ("Yes" or "No").
func (c *Collector) SetPregnancy(v Pregnancy) (State, error) {
	if v != PregnancyYes && v != PregnancyNo {
		return State{}, fmt.Errorf("%w: pregnancy %q", ErrInvalidAnswer, v)
	}
	return c.mutate(func(p *Profile) error {
		p.Pregnancy = v
		return nil
	})
}

// toggle flips membership of v in *list: absent inserts (at the end),
// present removes. Set semantics; insertion order is presentational only.
func toggle(list *[]string, v string) {
	for i, item := range *list {
		if item == v {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
	*list = append(*list, v)
}

// ToggleConcern flips a concern selection (step 2).
func (c *Collector) ToggleConcern(v string) (State, error) {
	if !ValidConcern(v) {
		return State{}, fmt.Errorf("%w: concern %q", ErrInvalidAnswer, v)
	}
	return c.mutate(func(p *Profile) error {
		toggle(&p.Concerns, v)
		return nil
	})
}

// ToggleAllergen flips an allergen selection (step 4). It accepts any
// value already present (so free-text entries can be removed) or any
// member of the fixed vocabulary.
func (c *Collector) ToggleAllergen(v string) (State, error) {
	return c.mutate(func(p *Profile) error {
		if !contains(FixedAllergens, v) && !contains(p.Allergens, v) {
			return fmt.Errorf("%w: allergen %q", ErrInvalidAnswer, v)
		}
		toggle(&p.Allergens, v)
		return nil
	})
}

// AddAllergen appends a free-text allergen. The value is trimmed;
// blank input and exact duplicates (including duplicates of fixed
// vocabulary entries already selected) are rejected.
func (c *Collector) AddAllergen(v string) (State, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return State{}, ErrEmptyAllergen
	}
	return c.mutate(func(p *Profile) error {
		if contains(p.Allergens, v) {
			return fmt.Errorf("%w: %q", ErrDuplicateAllergen, v)
		}
		p.Allergens = append(p.Allergens, v)
		return nil
	})
}

// ToggleEyeConcern flips an eye-area selection (step 5).
func (c *Collector) ToggleEyeConcern(v string) (State, error) {
	if !ValidEyeConcern(v) {
		return State{}, fmt.Errorf("%w: eye concern %q", ErrInvalidAnswer, v)
	}
	return c.mutate(func(p *Profile) error {
		toggle(&p.EyeConcerns, v)
		return nil
	})
}

// Finalize freezes the in-progress profile for submission: it checks
// that the questionnaire is on the last step with its guard satisfied,
// then stamps the session identity. The persisted in-progress state is
// left untouched until the submission flow resets it.
func (c *Collector) Finalize() (Profile, error) {
	st, err := c.State()
	if err != nil {
		return Profile{}, err
	}
	if st.Step != StepPregnancy {
		return Profile{}, ErrInvalidTransition
	}
	if !guards[StepPregnancy](st.Profile) {
		return Profile{}, ErrStepIncomplete
	}

	p := st.Profile
	p.SessionID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()
	return p, nil
}
