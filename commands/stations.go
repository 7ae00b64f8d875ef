package commands

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	stationSep  = regexp.MustCompile(`[\s,;]+`)
	stationCode = regexp.MustCompile(`^\d+$`)
)

// ParseStations splits free text into station codes. Codes may be separated
// by whitespace, commas or semicolons and '#' starts a comment. Tokens that
// are not numeric are returned separately.
func ParseStations(text string) (codes, rejected []string) {
	for _, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, tok := range stationSep.Split(strings.TrimSpace(line), -1) {
			switch {
			case tok == "":
			case stationCode.MatchString(tok):
				codes = append(codes, tok)
			default:
				rejected = append(rejected, tok)
			}
		}
	}
	return codes, rejected
}

// collectStations merges codes given as arguments with those in file.
func collectStations(args []string, file string) ([]string, error) {
	text := strings.Join(args, "\n")
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read station list: %w", err)
		}
		text += "\n" + string(raw)
	}

	codes, rejected := ParseStations(text)
	for _, tok := range rejected {
		state.logger.Warn("[config] Ignoring invalid station code %q", tok)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no station codes given")
	}
	return codes, nil
}
