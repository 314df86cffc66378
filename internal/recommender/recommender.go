// Package recommender suggests electives for a program from a short
// description of the applicant's background.
package recommender

import (
	"net/http"
	"regexp"
	"slices"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
)

// Level values for the math, coding and product fields.
const (
	LevelNone   = "none"
	LevelLow    = "low"
	LevelMid    = "mid"
	LevelHigh   = "high"
	LevelJunior = "junior"
	LevelSenior = "senior"
)

// Program slugs with elective rules.
const (
	ProgramAI        = "ai"
	ProgramAIProduct = "ai_product"
)

// Profile describes an applicant.
type Profile struct {
	Math    string   `json:"math"`
	Coding  string   `json:"coding"`
	Product string   `json:"product"`
	Goals   []string `json:"goals"`
}

// DefaultProfile is used for any field the applicant leaves out.
func DefaultProfile() Profile {
	return Profile{Math: LevelMid, Coding: LevelJunior, Product: LevelJunior}
}

func (p Profile) hasGoal(goal string) bool {
	return slices.Contains(p.Goals, goal)
}

// rule adds electives when its predicate holds for a profile.
type rule struct {
	when      func(Profile) bool
	electives []string
}

func levelIn(get func(Profile) string, levels ...string) func(Profile) bool {
	return func(p Profile) bool { return slices.Contains(levels, get(p)) }
}

func goal(g string) func(Profile) bool {
	return func(p Profile) bool { return p.hasGoal(g) }
}

func math(p Profile) string    { return p.Math }
func coding(p Profile) string  { return p.Coding }
func product(p Profile) string { return p.Product }

var rules = map[string][]rule{
	ProgramAI: {
		{levelIn(math, LevelLow, LevelMid), []string{
			"Линейная алгебра для ML (bridge)",
			"Математический анализ для ML (интенсив)",
		}},
		{levelIn(coding, LevelNone, LevelJunior), []string{
			"Python for Data/ML (интенсив)",
			"Алгоритмы и структуры данных (практикум)",
		}},
		{goal("ml_engineer"), []string{
			"Глубокое обучение",
			"MLOps и продакшен ML",
			"Генеративные модели",
			"Системы рекомендаций",
		}},
		{goal("data_engineer"), []string{
			"Data Warehousing",
			"Spark/Distributed ML",
			"Streaming & Kafka",
		}},
		{goal("ai_research"), []string{
			"Оптимизация в ML",
			"Байесовские методы",
			"Нейросетевые архитектуры (Advanced)",
		}},
	},
	ProgramAIProduct: {
		{levelIn(product, LevelNone, LevelJunior), []string{
			"Product Management Fundamentals",
			"Дизайн-мышление и CustDev",
		}},
		{levelIn(coding, LevelNone, LevelJunior), []string{
			"Python for Analytics",
			"SQL для продуктовых аналитиков",
		}},
		{goal("product_manager"), []string{
			"Unit-экономика (ARPU, LTV, CAC, ROMI)",
			"A/B-тестирование и каузальный инференс",
			"Продуктовый Discovery",
			"Дорожные карты и приоритизация (RICE, WSJF)",
		}},
		{goal("data_analyst"), []string{
			"Эксперименты и статистика",
			"BI-инструменты (Power BI / Tableau)",
			"Фреймворки принятия решений",
		}},
		{goal("ml_engineer"), []string{
			"ML for PMs (overview)",
			"GenAI в продуктах: LLM + RAG (практикум)",
		}},
	},
}

// Programs lists the slugs Recommend knows about.
func Programs() []string {
	return []string{ProgramAI, ProgramAIProduct}
}

// Recommend returns the electives matching profile for program, without
// duplicates and in rule order. An unknown program yields no electives.
func Recommend(profile Profile, program string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range rules[program] {
		if !r.when(profile) {
			continue
		}
		for _, e := range r.electives {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

var (
	levelChoices   = []string{LevelLow, LevelMid, LevelHigh}
	skillChoices   = []string{LevelNone, LevelJunior, LevelMid, LevelSenior}
	programChoices = []string{ProgramAI, ProgramAIProduct}
	goalSplit      = regexp.MustCompile(`[;, ]+`)
)

func fieldPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(key + `\s*=\s*([a-z_ ;]+)`)
}

var fieldPatterns = map[string]*regexp.Regexp{
	"math":    fieldPattern("math"),
	"coding":  fieldPattern("coding"),
	"product": fieldPattern("product"),
	"goals":   fieldPattern("goals"),
	"program": fieldPattern("program"),
}

// ParseProfile reads a one-line questionnaire such as
//
//	math=mid, coding=junior, product=mid, goals=product_manager;data_analyst, program=ai_product
//
// Missing or unrecognised values fall back to DefaultProfile and the
// ai_product program. Input without any key=value pair is rejected.
func ParseProfile(line string) (Profile, string, error) {
	s := strings.ToLower(line)
	if !strings.Contains(s, "=") {
		return Profile{}, "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"expected key=value pairs, e.g. math=mid, coding=junior, program=ai")
	}

	p := DefaultProfile()
	if v, ok := grab(s, "math", levelChoices); ok {
		p.Math = v
	}
	if v, ok := grab(s, "coding", skillChoices); ok {
		p.Coding = v
	}
	if v, ok := grab(s, "product", skillChoices); ok {
		p.Product = v
	}
	if m := fieldPatterns["goals"].FindStringSubmatch(s); m != nil {
		for _, g := range goalSplit.Split(strings.TrimSpace(m[1]), -1) {
			if g != "" {
				p.Goals = append(p.Goals, g)
			}
		}
	}
	program := ProgramAIProduct
	if v, ok := grab(s, "program", programChoices); ok {
		program = v
	}
	return p, program, nil
}

func grab(s, key string, choices []string) (string, bool) {
	m := fieldPatterns[key].FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if !slices.Contains(choices, v) {
		return "", false
	}
	return v, true
}

// Validate reports whether program has elective rules.
func Validate(program string) error {
	if _, ok := rules[program]; !ok {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"unknown program %q, expected one of %s", program, strings.Join(Programs(), ", "))
	}
	return nil
}
