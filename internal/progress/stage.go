// Package progress maps raw engine status events onto one monotonic
// 0–100 scale with stage labels, and delivers them to caller callbacks.
package progress

import (
	"fmt"
	"strings"
)

// Stage is a step of a recognition request, in order.
type Stage int

const (
	StageInitializing Stage = iota
	StageLoadingLanguage
	StageConfiguring
	StageRecognizing
	StageFinalizing
)

var stageInfo = [...]struct {
	name   string
	label  string
	lo, hi int
}{
	StageInitializing:    {"initializing", "Initializing engine", 0, 20},
	StageLoadingLanguage: {"loading_language", "Loading language data", 20, 50},
	StageConfiguring:     {"configuring", "Configuring engine", 50, 70},
	StageRecognizing:     {"recognizing", "Recognizing text", 70, 95},
	StageFinalizing:      {"finalizing", "Finalizing", 95, 100},
}

// Stages lists every stage in order.
func Stages() []Stage {
	return []Stage{StageInitializing, StageLoadingLanguage, StageConfiguring, StageRecognizing, StageFinalizing}
}

func (s Stage) valid() bool { return s >= StageInitializing && s <= StageFinalizing }

func (s Stage) String() string {
	if !s.valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageInfo[s].name
}

// Label returns the human-readable stage name.
func (s Stage) Label() string {
	if !s.valid() {
		return s.String()
	}
	return stageInfo[s].label
}

// Range returns the percent interval covered by the stage.
func (s Stage) Range() (lo, hi int) {
	if !s.valid() {
		return 0, 0
	}
	return stageInfo[s].lo, stageInfo[s].hi
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for _, st := range Stages() {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown progress stage %q", string(b))
}

// statusRules are checked in order; the first keyword hit wins.
var statusRules = []struct {
	stage    Stage
	keywords []string
}{
	{StageFinalizing, []string{"done", "finaliz", "complete", "cleaning up", "terminat"}},
	{StageRecognizing, []string{"recogniz", "ocr"}},
	{StageConfiguring, []string{"api", "configur", "parameter", "warm"}},
	{StageLoadingLanguage, []string{"language", "traineddata", "download", "fetch"}},
	{StageInitializing, []string{"core", "worker", "initializ", "start", "validat"}},
}

// StageFor maps an engine status string to a stage. The boolean is false
// for statuses that match no known keyword.
func StageFor(status string) (Stage, bool) {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return StageInitializing, false
	}
	for _, r := range statusRules {
		for _, kw := range r.keywords {
			if strings.Contains(s, kw) {
				return r.stage, true
			}
		}
	}
	return StageInitializing, false
}
