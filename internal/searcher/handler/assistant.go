package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/assistant"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/recommender"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/logger"
)

type askResponse struct {
	*assistant.Answer
	Text string `json:"answer"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	question := r.URL.Query().Get("q")

	answer, err := h.assistant.Ask(ctx, question)
	if err != nil {
		outcome := analytics.OutcomeError
		switch {
		case apperrors.Is(err, apperrors.ErrOffTopic):
			outcome = analytics.OutcomeOffTopic
		case apperrors.Is(err, apperrors.ErrInvalidInput):
			outcome = analytics.OutcomeInvalid
		default:
			logger.FromContext(ctx).Error("ask failed", "question", question, "error", err)
		}
		h.observe(ctx, endpointAsk, outcome, question, nil, start)
		h.writeAppError(w, err, "answering failed")
		return
	}

	h.observe(ctx, endpointAsk, analytics.OutcomeOK, answer.Question, &searchOutcome{
		totalHits:  len(answer.Hits),
		returned:   len(answer.Facts),
		generation: h.executor.Generation(),
	}, start)
	h.writeJSON(w, http.StatusOK, askResponse{Answer: answer, Text: answer.Text()})
}

type compareResponse struct {
	*assistant.Comparison
	Text string `json:"text"`
}

// Compare summarises ?programs=a,b or the default pair.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var slugs []string
	for _, s := range strings.Split(r.URL.Query().Get("programs"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			slugs = append(slugs, s)
		}
	}
	cmp, err := h.assistant.Compare(slugs...)
	if err != nil {
		h.writeAppError(w, err, "comparison failed")
		return
	}
	h.writeJSON(w, http.StatusOK, compareResponse{Comparison: cmp, Text: cmp.Text()})
}

// RecommendRequest accepts either a one-line questionnaire in Line or a
// structured Profile and Program. Line wins when both are sent.
type RecommendRequest struct {
	Line    string               `json:"line,omitempty"`
	Profile *recommender.Profile `json:"profile,omitempty"`
	Program string               `json:"program,omitempty"`
}

func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		profile recommender.Profile
		program string
	)
	if strings.TrimSpace(req.Line) != "" {
		var err error
		profile, program, err = recommender.ParseProfile(req.Line)
		if err != nil {
			h.writeAppError(w, err, "recommendation failed")
			return
		}
	} else {
		profile = withDefaults(req.Profile)
		program = req.Program
		if program == "" {
			program = recommender.ProgramAIProduct
		}
	}

	rec, err := h.assistant.Recommend(profile, program)
	if err != nil {
		h.writeAppError(w, err, "recommendation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func withDefaults(p *recommender.Profile) recommender.Profile {
	out := recommender.DefaultProfile()
	if p == nil {
		return out
	}
	if p.Math != "" {
		out.Math = strings.ToLower(p.Math)
	}
	if p.Coding != "" {
		out.Coding = strings.ToLower(p.Coding)
	}
	if p.Product != "" {
		out.Product = strings.ToLower(p.Product)
	}
	for _, g := range p.Goals {
		out.Goals = append(out.Goals, strings.ToLower(g))
	}
	return out
}

func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(r.URL.Query().Get("program"))
	if slug == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'program' is required")
		return
	}
	info, err := h.assistant.Plan(slug)
	if err != nil {
		h.writeAppError(w, err, "loading study plan failed")
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}
