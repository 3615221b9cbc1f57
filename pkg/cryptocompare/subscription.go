package cryptocompare

import "strings"

// SubscriptionFormat renders instrument keys ("BASE~QUOTE") into streamer
// subscription strings of the form "<freq>~<agg>~BASE~QUOTE[suffix]".
type SubscriptionFormat struct {
	Frequency string
	Aggregate string
	Suffix    string
}

func (f SubscriptionFormat) Format(key string) string {
	return f.Frequency + "~" + f.Aggregate + "~" + key + f.Suffix
}

// FormatAll renders every key in order.
func (f SubscriptionFormat) FormatAll(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, f.Format(k))
	}
	return out
}

// ParseKey extracts the instrument key from a subscription string produced
// by Format. ok is false when the string does not match this format.
func (f SubscriptionFormat) ParseKey(sub string) (string, bool) {
	prefix := f.Frequency + "~" + f.Aggregate + "~"
	if !strings.HasPrefix(sub, prefix) || !strings.HasSuffix(sub, f.Suffix) {
		return "", false
	}
	key := strings.TrimSuffix(strings.TrimPrefix(sub, prefix), f.Suffix)
	if strings.Count(key, "~") != 1 {
		return "", false
	}
	return key, true
}

// Frames chunks subscription strings into frames of at most max entries.
func Frames(action string, subs []string, max int) []SubscriptionFrame {
	if len(subs) == 0 {
		return nil
	}
	if max <= 0 {
		max = len(subs)
	}
	frames := make([]SubscriptionFrame, 0, (len(subs)+max-1)/max)
	for start := 0; start < len(subs); start += max {
		end := start + max
		if end > len(subs) {
			end = len(subs)
		}
		chunk := make([]string, end-start)
		copy(chunk, subs[start:end])
		frames = append(frames, SubscriptionFrame{Action: action, Subs: chunk})
	}
	return frames
}
