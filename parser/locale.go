package parser

import (
	"strings"

	"golang.org/x/text/language"
)

// Locale selects the label table used for trace sections.
// The zero value behaves as English.
type Locale string

const (
	English Locale = "en"
	Russian Locale = "ru"
)

var localeMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Russian,
})

// MatchLocale resolves a locale code or an Accept-Language header value to a
// supported Locale, returning fallback when nothing matches.
func MatchLocale(value string, fallback Locale) Locale {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, index, confidence := localeMatcher.Match(tags...)
	if confidence == language.No {
		return fallback
	}
	if index == 1 {
		return Russian
	}
	return English
}

// ThoughtsTitle is the default spoiler title.
func (l Locale) ThoughtsTitle() string {
	return l.labels().thoughts
}

type labels struct {
	thoughts       string
	searchResults  string
	reasoningSteps string
	planStatus     string
	remainingSteps string
	enoughData     string
	taskCompleted  string
	function       string
	tool           string
	reasoning      string
	unclearTerms   string
	assumptions    string
	query          string
	nextSteps      string
	completedSteps string
	status         string
	title          string
	content        string
	confidence     string
	yes            string
	no             string
}

var englishLabels = labels{
	thoughts:       "Thoughts",
	searchResults:  "Search results",
	reasoningSteps: "Reasoning steps",
	planStatus:     "Plan status",
	remainingSteps: "Remaining steps",
	enoughData:     "Enough data",
	taskCompleted:  "Task completed",
	function:       "Function",
	tool:           "Tool",
	reasoning:      "Reasoning",
	unclearTerms:   "Unclear terms",
	assumptions:    "Assumptions",
	query:          "Query",
	nextSteps:      "Next steps",
	completedSteps: "Completed steps",
	status:         "Status",
	title:          "Title",
	content:        "Content",
	confidence:     "Confidence",
	yes:            "Yes",
	no:             "No",
}

var russianLabels = labels{
	thoughts:       "Мысли",
	searchResults:  "Результаты поиска",
	reasoningSteps: "Шаги рассуждения",
	planStatus:     "Статус плана",
	remainingSteps: "Оставшиеся шаги",
	enoughData:     "Достаточно данных",
	taskCompleted:  "Задача выполнена",
	function:       "Функция",
	tool:           "Используемый инструмент",
	reasoning:      "Обоснование",
	unclearTerms:   "Неясные термины",
	assumptions:    "Предположения",
	query:          "Поисковый запрос",
	nextSteps:      "Следующие шаги",
	completedSteps: "Выполненные шаги",
	status:         "Статус",
	title:          "Заголовок",
	content:        "Содержимое",
	confidence:     "Уверенность",
	yes:            "Да",
	no:             "Нет",
}

func (l Locale) labels() labels {
	if l == Russian {
		return russianLabels
	}
	return englishLabels
}
