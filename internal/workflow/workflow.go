package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/setupdesk/setup-desk/internal/classifier"
	"github.com/setupdesk/setup-desk/internal/deskerr"
	"github.com/setupdesk/setup-desk/internal/installer"
	"github.com/setupdesk/setup-desk/internal/llm"
	"github.com/setupdesk/setup-desk/internal/store"
)

// StateID names one node of the request workflow.
type StateID string

const (
	StateClassifying        StateID = "classifying"
	StateAnsweringQuestion  StateID = "answering_question"
	StateLoggingRequest     StateID = "logging_request"
	StateCheckingPermission StateID = "checking_permission"
	StateCheckingHistory    StateID = "checking_history"
	StateCheckingVersions   StateID = "checking_available_versions"
	StateExecuting          StateID = "executing"

	StateAnswered         StateID = "answered"
	StateCompleted        StateID = "completed"
	StateAlreadyInstalled StateID = "already_installed"
	StateDenied           StateID = "denied"
	StateFailed           StateID = "failed"
)

// OutcomeType discriminates the terminal result of one request.
type OutcomeType string

const (
	OutcomeQAResponse          OutcomeType = "qa_response"
	OutcomeInstallationSuccess OutcomeType = "installation_success"
	OutcomeAlreadyInstalled    OutcomeType = "already_installed"
	OutcomePermissionDenied    OutcomeType = "permission_denied"
	OutcomeInstallationError   OutcomeType = "installation_error"
	OutcomeQAError             OutcomeType = "qa_error"
)

// Outcome is the terminal result of processing one request.
type Outcome struct {
	Type            OutcomeType `json:"type"`
	Message         string      `json:"message"`
	Package         string      `json:"package,omitempty"`
	Version         string      `json:"version,omitempty"`
	RequestID       string      `json:"request_id,omitempty"`
	Verified        bool        `json:"verified,omitempty"`
	AllowedPackages []string    `json:"allowed_packages,omitempty"`
	InstalledAt     time.Time   `json:"installed_at,omitzero"`

	// Err classifies denied and failed outcomes; match it against the
	// deskerr sentinels with errors.Is. Nil for successful outcomes.
	Err error `json:"-"`
}

// Classifier decides whether free text asks for an installation.
type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Result, error)
}

// Ledger records the lifecycle of installation requests.
type Ledger interface {
	LogPending(ctx context.Context, userID, packageName, version string) (string, error)
	MarkCompleted(ctx context.Context, requestID, version string) error
	MarkDenied(ctx context.Context, requestID, reason string) error
	MarkFailed(ctx context.Context, requestID, reason string) error
	FindCompletedInstall(ctx context.Context, userID, packageName string) (store.CompletedInstall, bool, error)
}

// PermissionChecker answers role-scoped package questions.
type PermissionChecker interface {
	IsAllowed(role, packageSpec string) bool
	AllowedPackages(role string) []string
}

// Executor installs packages and looks up published versions.
type Executor interface {
	Execute(ctx context.Context, packageName, version string) installer.Result
	AvailableVersions(ctx context.Context, packageName string, limit int) []string
}

// Options wires a Workflow. Completer is optional; without it the question
// branch answers with static guidance.
type Options struct {
	Classifier   Classifier
	Ledger       Ledger
	Permissions  PermissionChecker
	Executor     Executor
	Completer    llm.Completer
	PreviewLimit int
	VersionLimit int
}

// Workflow walks one request through classification, permission resolution,
// history lookup and execution. Every invocation ends in exactly one terminal
// state; no error escapes ProcessRequest.
type Workflow struct {
	classifier   Classifier
	ledger       Ledger
	permissions  PermissionChecker
	executor     Executor
	completer    llm.Completer
	logger       *slog.Logger
	previewLimit int
	versionLimit int

	// installMu serializes pip invocations across concurrent requests.
	installMu sync.Mutex

	steps map[StateID]stepFunc
}

type stepFunc func(ctx context.Context, st *state) StateID

// state is the per-invocation scratchpad threaded through the steps.
type state struct {
	user           store.User
	text           string
	classification classifier.Result
	requestID      string
	prior          store.CompletedInstall
	priorFound     bool
	versions       []string
	install        installer.Result
	answer         string
	failure        error
	questionPath   bool
}

func New(logger *slog.Logger, opts Options) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	previewLimit := opts.PreviewLimit
	if previewLimit <= 0 {
		previewLimit = 10
	}
	versionLimit := opts.VersionLimit
	if versionLimit <= 0 {
		versionLimit = 5
	}
	w := &Workflow{
		classifier:   opts.Classifier,
		ledger:       opts.Ledger,
		permissions:  opts.Permissions,
		executor:     opts.Executor,
		completer:    opts.Completer,
		logger:       logger.With("component", "workflow"),
		previewLimit: previewLimit,
		versionLimit: versionLimit,
	}
	w.steps = map[StateID]stepFunc{
		StateClassifying:        w.stepClassify,
		StateAnsweringQuestion:  w.stepAnswerQuestion,
		StateLoggingRequest:     w.stepLogRequest,
		StateCheckingPermission: w.stepCheckPermission,
		StateCheckingHistory:    w.stepCheckHistory,
		StateCheckingVersions:   w.stepCheckVersions,
		StateExecuting:          w.stepExecute,
	}
	return w
}

// ProcessRequest runs the full workflow for one piece of user text and
// returns a terminal Outcome. It never returns an error; failures are
// outcomes too.
func (w *Workflow) ProcessRequest(ctx context.Context, user store.User, text string) Outcome {
	st := &state{user: user, text: installer.SanitizeInput(text)}

	current := StateClassifying
	for {
		step, ok := w.steps[current]
		if !ok {
			break
		}
		next := step(ctx, st)
		w.logger.Debug("workflow transition", "employee_id", user.EmployeeID, "from", current, "to", next)
		current = next
	}

	outcome := w.outcome(current, st)
	w.logger.Info("request processed",
		"employee_id", user.EmployeeID,
		"outcome", outcome.Type,
		"package", outcome.Package,
		"request_id", outcome.RequestID)
	return outcome
}

func (w *Workflow) stepClassify(ctx context.Context, st *state) StateID {
	if st.text == "" {
		st.questionPath = true
		st.failure = fmt.Errorf("%w: the request text is empty", deskerr.ErrValidation)
		return StateFailed
	}

	result, err := w.classifier.Classify(ctx, st.text)
	if err != nil {
		st.questionPath = true
		st.failure = fmt.Errorf("could not understand the request: %w", err)
		return StateFailed
	}
	st.classification = result

	if result.Intent == classifier.IntentInstall && result.Package != "" {
		return StateLoggingRequest
	}
	st.questionPath = true
	return StateAnsweringQuestion
}

func (w *Workflow) stepAnswerQuestion(ctx context.Context, st *state) StateID {
	if w.completer == nil {
		st.answer = staticGuidance(st.user.Role)
		return StateAnswered
	}

	answer, err := w.completer.Complete(ctx, buildQuestionPrompt(st.user, st.text))
	if err != nil {
		st.failure = fmt.Errorf("could not answer the question: %w", err)
		return StateFailed
	}
	st.answer = strings.TrimSpace(answer)
	if st.answer == "" {
		st.answer = staticGuidance(st.user.Role)
	}
	return StateAnswered
}

func (w *Workflow) stepLogRequest(ctx context.Context, st *state) StateID {
	requestID, err := w.ledger.LogPending(ctx, st.user.ID, st.classification.Package, st.classification.Version)
	if err != nil {
		st.failure = fmt.Errorf("could not record the request: %w", err)
		return StateFailed
	}
	st.requestID = requestID
	return StateCheckingPermission
}

func (w *Workflow) stepCheckPermission(ctx context.Context, st *state) StateID {
	pkg := st.classification.Package

	if err := installer.ValidatePackageName(pkg); err != nil {
		st.failure = err
		w.markFailed(ctx, st)
		return StateFailed
	}
	if err := installer.ValidateVersion(st.classification.Version); err != nil {
		st.failure = err
		w.markFailed(ctx, st)
		return StateFailed
	}

	if !w.permissions.IsAllowed(st.user.Role, pkg) {
		st.failure = fmt.Errorf("role %s is not permitted to install %s: %w", st.user.Role, pkg, deskerr.ErrPermission)
		if err := w.ledger.MarkDenied(ctx, st.requestID, st.failure.Error()); err != nil {
			w.logger.Warn("marking request denied failed", "request_id", st.requestID, "error", err)
		}
		return StateDenied
	}
	return StateCheckingHistory
}

func (w *Workflow) stepCheckHistory(ctx context.Context, st *state) StateID {
	prior, found, err := w.ledger.FindCompletedInstall(ctx, st.user.ID, st.classification.Package)
	if err != nil {
		w.logger.Warn("history lookup failed", "request_id", st.requestID, "error", err)
		return StateCheckingVersions
	}
	if found {
		st.prior = prior
		st.priorFound = true
		if err := w.ledger.MarkCompleted(ctx, st.requestID, prior.Version); err != nil {
			w.logger.Warn("marking request completed failed", "request_id", st.requestID, "error", err)
		}
		return StateAlreadyInstalled
	}
	return StateCheckingVersions
}

func (w *Workflow) stepCheckVersions(ctx context.Context, st *state) StateID {
	// Advisory only, a failed lookup never blocks the installation.
	st.versions = w.executor.AvailableVersions(ctx, st.classification.Package, w.versionLimit)
	return StateExecuting
}

func (w *Workflow) stepExecute(ctx context.Context, st *state) StateID {
	w.installMu.Lock()
	result := w.executor.Execute(ctx, st.classification.Package, st.classification.Version)
	w.installMu.Unlock()
	st.install = result

	if !result.Success {
		st.failure = fmt.Errorf("%w: %s", deskerr.ErrInstallation, result.Error)
		w.markFailed(ctx, st)
		return StateFailed
	}

	version := st.classification.Version
	if version == "" {
		version = "latest"
	}
	if err := w.ledger.MarkCompleted(ctx, st.requestID, version); err != nil {
		w.logger.Warn("marking request completed failed", "request_id", st.requestID, "error", err)
	}
	return StateCompleted
}

func (w *Workflow) markFailed(ctx context.Context, st *state) {
	if st.requestID == "" {
		return
	}
	if err := w.ledger.MarkFailed(ctx, st.requestID, st.failure.Error()); err != nil {
		w.logger.Warn("marking request failed failed", "request_id", st.requestID, "error", err)
	}
}

func (w *Workflow) outcome(terminal StateID, st *state) Outcome {
	switch terminal {
	case StateAnswered:
		return Outcome{Type: OutcomeQAResponse, Message: st.answer}
	case StateCompleted:
		version := st.classification.Version
		if version == "" {
			version = "latest"
		}
		message := fmt.Sprintf("Successfully installed %s", st.install.Spec)
		if !st.install.Verified {
			message += " (import verification did not pass)"
		}
		return Outcome{
			Type:      OutcomeInstallationSuccess,
			Message:   message,
			Package:   st.classification.Package,
			Version:   version,
			RequestID: st.requestID,
			Verified:  st.install.Verified,
		}
	case StateAlreadyInstalled:
		return Outcome{
			Type: OutcomeAlreadyInstalled,
			Message: fmt.Sprintf("%s is already installed (version %s, completed %s)",
				st.classification.Package, st.prior.Version, st.prior.CompletedAt.Format(time.RFC3339)),
			Package:     st.classification.Package,
			Version:     st.prior.Version,
			RequestID:   st.requestID,
			InstalledAt: st.prior.CompletedAt,
		}
	case StateDenied:
		return Outcome{
			Type: OutcomePermissionDenied,
			Message: fmt.Sprintf("Role %s is not permitted to install %s.",
				st.user.Role, st.classification.Package),
			Package:         st.classification.Package,
			RequestID:       st.requestID,
			AllowedPackages: w.allowedPreview(st.user.Role),
			Err:             st.failure,
		}
	case StateFailed:
		if st.questionPath {
			return Outcome{Type: OutcomeQAError, Message: st.failure.Error(), Err: st.failure}
		}
		return Outcome{
			Type:      OutcomeInstallationError,
			Message:   st.failure.Error(),
			Package:   st.classification.Package,
			RequestID: st.requestID,
			Err:       st.failure,
		}
	}
	return Outcome{Type: OutcomeQAError, Message: fmt.Sprintf("workflow halted in unknown state %s", terminal)}
}

func (w *Workflow) allowedPreview(role string) []string {
	allowed := w.permissions.AllowedPackages(role)
	if len(allowed) > w.previewLimit {
		allowed = allowed[:w.previewLimit]
	}
	return allowed
}

func buildQuestionPrompt(user store.User, text string) string {
	var b strings.Builder
	b.WriteString("You are an IT helpdesk assistant for software installation requests.\n")
	b.WriteString("Answer the employee's question briefly and practically.\n\n")
	fmt.Fprintf(&b, "Employee role: %s\n", user.Role)
	fmt.Fprintf(&b, "Question: %s\n", text)
	return b.String()
}

func staticGuidance(role string) string {
	return fmt.Sprintf("I can install Python packages for you. Try something like "+
		"\"install pandas\" or \"install numpy version 1.26.4\". Your role (%s) "+
		"determines which packages are available.", role)
}
