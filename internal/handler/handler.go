package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/qla/internal/handler/views"
	appI18n "github.com/pavelanni/qla/internal/i18n"
	"github.com/pavelanni/qla/internal/metrics"
	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/report"
	"github.com/pavelanni/qla/internal/store"
	"github.com/pavelanni/qla/internal/wizard"
)

// maxUploadSize bounds request bodies, roster uploads included.
const maxUploadSize = 10 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	metrics *metrics.Metrics
	config  model.ServerConfig
}

// New creates a new Handler.
func New(s *store.Store, m *metrics.Metrics, cfg model.ServerConfig) (*Handler, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = store.DefaultSessionTTL
	}
	return &Handler{store: s, metrics: m, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxUploadSize))
		r.Use(h.csrfMiddleware)
		r.Use(h.sessionMiddleware)

		r.Get("/", h.handleIndex)
		r.Post("/setup/layout", h.handleLayout)
		r.Post("/setup", h.handleSetup)
		r.Post("/boundaries/scheme", h.handleSelectScheme)
		r.Post("/boundaries", h.handleBoundaries)
		r.Get("/roster/template", h.handleRosterTemplate)
		r.Post("/roster", h.handleRosterUpload)
		r.Post("/scores", h.handleScores)
		r.Get("/reports/archive", h.handleArchive)
		r.Get("/reports/{file}", h.handleReportFile)
		r.Post("/reset", h.handleReset)
	})
}

// BasePathMiddleware exposes the configured URL prefix to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// statusFor maps wizard errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrIncompleteConfiguration), errors.Is(err, model.ErrInvalidQuestion):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	switch st.Step {
	case model.StepSetup:
		render(w, r, http.StatusOK, views.SetupStep(setupFormFromState(st)))
	case model.StepBoundaries:
		render(w, r, http.StatusOK, views.BoundariesStep(views.BoundariesForm{
			Scheme:     st.Scheme,
			Boundaries: st.Scheme.DefaultBoundaries(),
		}))
	case model.StepScores:
		render(w, r, http.StatusOK, views.ScoresStep(scoresFormFromState(st)))
	case model.StepGenerate:
		h.renderGenerate(w, r, st)
	default:
		render(w, r, http.StatusConflict, views.ErrorPage(st.Step, appI18n.T(r.Context(), "IncompleteConfiguration")))
	}
}

func (h *Handler) handleLayout(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	form, err := parseSetupForm(r)
	if err == nil {
		var next wizard.State
		next, err = wizard.Layout(st, layoutOf(form.Rows))
		h.metrics.Transition(int(st.Step), err)
		if err == nil {
			err = h.saveState(r, next)
		}
	}
	if err != nil {
		h.renderStepError(w, r, st, form, err)
		return
	}
	render(w, r, http.StatusOK, views.SetupStep(form))
}

func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	form, err := parseSetupForm(r)
	if err == nil {
		var next wizard.State
		next, err = wizard.Setup(st, setupInput(form))
		h.metrics.Transition(int(st.Step), err)
		if err == nil {
			err = h.saveState(r, next)
		}
	}
	if err != nil {
		h.renderStepError(w, r, st, form, err)
		return
	}
	slog.Info("assessment set up", "session", sessionIDFromContext(r.Context()))
	h.redirectHome(w, r)
}

func (h *Handler) handleSelectScheme(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	next, err := wizard.SelectScheme(st, model.GradingScheme(r.FormValue("scheme")))
	h.metrics.Transition(int(st.Step), err)
	if err == nil {
		err = h.saveState(r, next)
	}
	if err != nil {
		h.renderStepError(w, r, st, nil, err)
		return
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleBoundaries(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	in, err := parseBoundariesForm(r)
	if err == nil {
		var next wizard.State
		next, err = wizard.SetBoundaries(st, in)
		h.metrics.Transition(int(st.Step), err)
		if err == nil {
			err = h.saveState(r, next)
		}
	}
	if err != nil {
		h.renderStepError(w, r, st, in, err)
		return
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleRosterTemplate(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="student_template.csv"`)
	_, _ = w.Write(wizard.RosterTemplate())
}

func (h *Handler) handleRosterUpload(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())

	file, header, err := r.FormFile("student_file")
	if err != nil {
		h.renderStepError(w, r, st, nil, fmt.Errorf("%w: no file uploaded", model.ErrValidation))
		return
	}
	defer file.Close()

	next, err := wizard.UploadRoster(st, file)
	h.metrics.RosterUpload(err == nil)
	if err == nil {
		err = h.saveState(r, next)
	}
	if err != nil {
		slog.Warn("roster rejected", "filename", header.Filename, "error", err)
		h.renderStepError(w, r, st, nil, err)
		return
	}
	slog.Info("roster uploaded", "filename", header.Filename, "students", len(next.Students))
	h.redirectHome(w, r)
}

func (h *Handler) handleScores(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	marks, err := parseScoresForm(r, st)
	if err == nil {
		var next wizard.State
		next, err = wizard.SubmitScores(st, marks)
		h.metrics.Transition(int(st.Step), err)
		if err == nil {
			err = h.saveState(r, next)
		}
	}
	if err != nil {
		h.renderStepError(w, r, st, marks, err)
		return
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	h.metrics.Transition(int(st.Step), nil)
	if err := h.saveState(r, wizard.Reset(st)); err != nil {
		slog.Error("failed to reset session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.removeSessionOutput(sessionIDFromContext(r.Context()))
	h.redirectHome(w, r)
}

// generate renders a session's reports into its own directory below the
// output directory.
func (h *Handler) generate(sessionID string, st wizard.State) (report.Result, bool, error) {
	if st.Step != model.StepGenerate {
		h.metrics.GenerationFailed("wrong_step")
		return report.Result{}, false, fmt.Errorf("%w: reports need all earlier steps", model.ErrIncompleteConfiguration)
	}
	branding, ok := report.LoadBranding(h.config.LogoPath)
	renderer := report.NewRenderer(report.WithBranding(branding))

	start := time.Now()
	res, err := renderer.Generate(h.sessionDir(sessionID), report.Input{
		Names:      st.ScoredNames(),
		Scores:     st.Scores,
		Boundaries: st.Boundaries,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrIncompleteConfiguration):
			h.metrics.GenerationFailed("incomplete")
		case errors.Is(err, model.ErrInvalidQuestion):
			h.metrics.GenerationFailed("invalid_question")
		default:
			h.metrics.GenerationFailed("io")
		}
		return report.Result{}, ok, err
	}
	h.metrics.ObserveGeneration(len(res.Files), time.Since(start))
	return res, ok, nil
}

func (h *Handler) renderGenerate(w http.ResponseWriter, r *http.Request, st wizard.State) {
	res, branding, err := h.generate(sessionIDFromContext(r.Context()), st)
	if err != nil {
		slog.Error("report generation failed", "error", err)
		render(w, r, statusFor(err), views.ErrorPage(st.Step, err.Error()))
		return
	}
	render(w, r, http.StatusOK, views.GenerateStep(views.GenerateView{Files: res.Files, Branding: branding}))
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	res, _, err := h.generate(sessionIDFromContext(r.Context()), st)
	if err != nil {
		slog.Error("report generation failed", "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.ArchiveName+`"`)
	_, _ = w.Write(res.Archive)
}

func (h *Handler) handleReportFile(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	file := chi.URLParam(r, "file")

	var known []string
	if st.Step == model.StepGenerate {
		for _, name := range st.ScoredNames() {
			known = append(known, report.FileName(name))
		}
	}
	if !slices.Contains(known, file) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+file+`"`)
	http.ServeFile(w, r, filepath.Join(h.sessionDir(sessionIDFromContext(r.Context())), file))
}

// renderStepError re-renders the current step with an inline message. draft
// carries the rejected form values where the step can show them again.
func (h *Handler) renderStepError(w http.ResponseWriter, r *http.Request, st wizard.State, draft any, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("wizard step failed", "step", st.Step, "error", err)
	}
	msg := err.Error()
	if status == http.StatusConflict {
		render(w, r, status, views.ErrorPage(st.Step, appI18n.T(r.Context(), "IncompleteConfiguration")))
		return
	}

	switch st.Step {
	case model.StepSetup:
		form, _ := draft.(views.SetupForm)
		if len(form.Rows) == 0 {
			form = setupFormFromState(st)
		}
		form.Error = msg
		render(w, r, status, views.SetupStep(form))
	case model.StepBoundaries:
		form := views.BoundariesForm{Scheme: st.Scheme, Boundaries: st.Scheme.DefaultBoundaries(), Error: msg}
		if in, ok := draft.(wizard.BoundariesInput); ok && in.Scheme.Valid() {
			form.Scheme = in.Scheme
			form.Boundaries = in.Scheme.DefaultBoundaries()
			for i, b := range form.Boundaries {
				if v, ok := in.Minimums[b.Grade]; ok {
					form.Boundaries[i].MinimumMark = v
				}
			}
		}
		render(w, r, status, views.BoundariesStep(form))
	case model.StepScores:
		form := scoresFormFromState(st)
		if marks, ok := draft.(wizard.ScoresInput); ok {
			form.Marks = marks
		}
		form.Error = msg
		render(w, r, status, views.ScoresStep(form))
	default:
		render(w, r, status, views.ErrorPage(st.Step, msg))
	}
}
