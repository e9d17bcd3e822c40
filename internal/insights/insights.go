// Package insights derives short activity suggestions from collected metrics.
package insights

import "fmt"

// Tip is one suggestion shown next to the live metrics.
type Tip struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Suggestions holds the cardio and activity tips for one metrics snapshot.
type Suggestions struct {
	HeartRate Tip `json:"heart_rate"`
	Activity  Tip `json:"activity"`
}

// For returns both tips. nil means the metric has not been observed.
func For(heartRate *uint16, steps *uint32) Suggestions {
	return Suggestions{
		HeartRate: HeartRate(heartRate),
		Activity:  Steps(steps),
	}
}

// HeartRate classifies a resting heart rate.
func HeartRate(bpm *uint16) Tip {
	if bpm == nil {
		return Tip{
			Title: "No resting heart rate",
			Text:  "Connect a device or allow heart rate reading to get personalized cardio suggestions.",
		}
	}

	hr := *bpm
	switch {
	case hr < 50:
		return Tip{
			Title: "Low resting HR",
			Text:  fmt.Sprintf("Resting HR %d bpm — usually seen in fit individuals. Good cardiovascular fitness; if you feel dizzy or unwell, consult a doctor.", hr),
		}
	case hr < 61:
		return Tip{
			Title: "Excellent resting HR",
			Text:  fmt.Sprintf("Resting HR %d bpm — great! Maintain regular cardio and recovery.", hr),
		}
	case hr < 81:
		return Tip{
			Title: "Normal resting HR",
			Text:  fmt.Sprintf("Resting HR %d bpm — try adding 20–30 min moderate cardio 3x/week.", hr),
		}
	case hr < 101:
		return Tip{
			Title: "Elevated resting HR",
			Text:  fmt.Sprintf("Resting HR %d bpm — consider light activity, hydration and rest today. If persistent, get medical advice.", hr),
		}
	default:
		return Tip{
			Title: "High resting HR",
			Text:  fmt.Sprintf("Resting HR %d bpm — rest, hydrate and avoid intense exercise until values normalize. Seek medical help if symptoms occur.", hr),
		}
	}
}

// Steps classifies a step count.
func Steps(count *uint32) Tip {
	if count == nil {
		return Tip{
			Title: "No step data",
			Text:  "No steps recorded — try carrying your phone or connect a step-tracking device.",
		}
	}

	n := *count
	switch {
	case n < 2000:
		return Tip{Title: "Very low activity", Text: fmt.Sprintf("Only %d steps — try a 10–20 minute walk now to get moving.", n)}
	case n < 5000:
		return Tip{Title: "Low activity", Text: fmt.Sprintf("%d steps so far — a short walk or standing breaks will help reach 5k.", n)}
	case n < 7500:
		return Tip{Title: "Good activity", Text: fmt.Sprintf("%d steps — good progress. Aim for 7.5–10k for more benefit.", n)}
	default:
		return Tip{Title: "Great activity", Text: fmt.Sprintf("%d steps — excellent! Keep this up.", n)}
	}
}
