package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

const resultSignature = "— Big Bang Exam Care"

// ExamType selects how result rows are ranked and worded.
type ExamType string

const (
	ExamVarsity ExamType = "varsity"
	ExamMedical ExamType = "medical"
)

func ParseExamType(value string) (ExamType, error) {
	switch ExamType(strings.ToLower(strings.TrimSpace(value))) {
	case ExamVarsity:
		return ExamVarsity, nil
	case ExamMedical:
		return ExamMedical, nil
	}
	return "", fmt.Errorf("%w: unknown exam type %q", domain.ErrValidation, value)
}

func (t ExamType) scoreField() string {
	if t == ExamMedical {
		return "Marks"
	}
	return "Total"
}

// ResultFormatter fills the Result column of exam rows. Scores are ranked
// highest first with ties sharing the lower position (1, 2, 2, 4).
type ResultFormatter struct {
	messageField string
}

func NewResultFormatter(messageField string) *ResultFormatter {
	messageField = strings.TrimSpace(messageField)
	if messageField == "" {
		messageField = "Result"
	}
	return &ResultFormatter{messageField: messageField}
}

// Format returns copies of rows with Position and the message field set.
func (f *ResultFormatter) Format(examType ExamType, rows []domain.Row) ([]domain.Row, error) {
	if examType != ExamVarsity && examType != ExamMedical {
		return nil, fmt.Errorf("%w: unknown exam type %q", domain.ErrValidation, examType)
	}

	field := examType.scoreField()
	scores := make([]float64, len(rows))
	highest := math.NaN()
	for i, row := range rows {
		scores[i] = parseScore(row[field])
		if !math.IsNaN(scores[i]) && (math.IsNaN(highest) || scores[i] > highest) {
			highest = scores[i]
		}
	}

	highestText := "0"
	if !math.IsNaN(highest) {
		highestText = strconv.FormatInt(int64(highest), 10)
	}

	out := make([]domain.Row, len(rows))
	for i, row := range rows {
		formatted := row.Clone()
		if formatted == nil {
			formatted = domain.Row{}
		}

		score := scores[i]
		var position string
		if math.IsNaN(score) {
			formatted["Position"] = nil
		} else {
			rank := 1
			for _, other := range scores {
				if !math.IsNaN(other) && other > score {
					rank++
				}
			}
			formatted["Position"] = rank
			position = strconv.Itoa(rank)
		}

		formatted[f.messageField] = resultText(examType, row, score, position, highestText)
		out[i] = formatted
	}
	return out, nil
}

func resultText(examType ExamType, row domain.Row, score float64, position string, highest string) string {
	header := fmt.Sprintf("ফলাফল: %s\nName: %s, Roll: %s, ", row.Field("Exam"), row.Field("Name"), row.Field("Roll"))
	absent := math.IsNaN(score) || score == 0

	switch examType {
	case ExamMedical:
		if absent {
			return header + fmt.Sprintf("Absent, Highest Marks: %s. \n%s", highest, resultSignature)
		}
		return header + fmt.Sprintf("Obtained Marks: %s, Position: %s, Highest Marks: %s. \n%s",
			formatScore(score), position, highest, resultSignature)
	default:
		if absent {
			return header + fmt.Sprintf("Absent, Highest Marks: %s.\n%s", highest, resultSignature)
		}
		return header + fmt.Sprintf("MCQ: %s., Written: %s., Total: %s., Position: %s, Highest Marks: %s.\n%s",
			row.Field("MCQ"), row.Field("Written"), formatScore(score), position, highest, resultSignature)
	}
}

// parseScore returns NaN for anything that is not a number.
func parseScore(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func formatScore(score float64) string {
	if score == math.Trunc(score) {
		return strconv.FormatFloat(score, 'f', 0, 64)
	}
	return strconv.FormatFloat(score, 'f', -1, 64)
}
