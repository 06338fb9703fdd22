package exam

import "fmt"

// Score is the raw outcome of one attempt (or several, once combined).
type Score struct {
	Correct  int `json:"correct_answers"`
	Total    int `json:"total_questions"`
	XPEarned int `json:"xp_earned"`
}

// Accuracy returns the percentage of correct answers, 0 for an empty score.
func (s Score) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total) * 100
}

func (s Score) String() string {
	return fmt.Sprintf("Score: %d/%d (%.1f%%) - XP: %d", s.Correct, s.Total, s.Accuracy(), s.XPEarned)
}

// AddCorrect returns s with n more correct answers.
func AddCorrect(s Score, n int) Score {
	s.Correct += n
	return s
}

// AddScores combines two attempts into one aggregate score.
func AddScores(a, b Score) Score {
	return Score{
		Correct:  a.Correct + b.Correct,
		Total:    a.Total + b.Total,
		XPEarned: a.XPEarned + b.XPEarned,
	}
}

// Scaled returns s with its XP scaled by multiplier.
func (s Score) Scaled(multiplier float64) Score {
	s.XPEarned = ScaleXP(s.XPEarned, multiplier)
	return s
}

// CompareAccuracy returns -1, 0 or 1 as a's accuracy is below, equal to or
// above b's. Scores without questions cannot be compared.
func CompareAccuracy(a, b Score) (int, error) {
	if a.Total == 0 || b.Total == 0 {
		return 0, ErrNoQuestions
	}
	// Cross-multiply to compare the ratios exactly.
	l := int64(a.Correct) * int64(b.Total)
	r := int64(b.Correct) * int64(a.Total)
	switch {
	case l < r:
		return -1, nil
	case l > r:
		return 1, nil
	}
	return 0, nil
}
