package captions

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"overdub/internal/services"
)

// RenderSRT serializes the track in SubRip format.
func RenderSRT(track Track) string {
	var b strings.Builder
	for i, cue := range track.Cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(cue.Start), srtTimestamp(cue.End), cue.Text)
	}
	return b.String()
}

// ParseSRT reads SubRip text back into a track. Index lines are ignored; the
// cue order in the file wins.
func ParseSRT(data string) (Track, error) {
	var track Track
	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		cue     *Cue
		textBuf []string
	)
	flush := func() {
		if cue != nil {
			cue.Text = strings.TrimSpace(strings.Join(textBuf, "\n"))
			track.Cues = append(track.Cues, *cue)
			cue = nil
			textBuf = nil
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case strings.Contains(trimmed, "-->"):
			flush()
			start, end, err := parseSRTRange(trimmed)
			if err != nil {
				return Track{}, err
			}
			cue = &Cue{Start: start, End: end}
		case cue != nil:
			textBuf = append(textBuf, line)
		default:
			// Index line before a timestamp; ignore.
		}
	}
	if err := scanner.Err(); err != nil {
		return Track{}, fmt.Errorf("scan srt: %w", err)
	}
	flush()
	return track, nil
}

func parseSRTRange(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, services.Wrap(services.ErrValidation, "align-captions", "parse srt", "malformed time range "+line, nil)
	}
	start, err := parseSRTTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := parseSRTTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseSRTTimestamp(value string) (float64, error) {
	// HH:MM:SS,mmm with the comma separator mandated by SubRip. Some encoders
	// emit a dot instead, accept both.
	normalized := strings.Replace(value, ",", ".", 1)
	fields := strings.Split(normalized, ":")
	if len(fields) != 3 {
		return 0, services.Wrap(services.ErrValidation, "align-captions", "parse srt", "malformed timestamp "+value, nil)
	}
	hours, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "align-captions", "parse srt", "malformed timestamp "+value, err)
	}
	minutes, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "align-captions", "parse srt", "malformed timestamp "+value, err)
	}
	seconds, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "align-captions", "parse srt", "malformed timestamp "+value, err)
	}
	return float64(hours)*3600 + float64(minutes)*60 + seconds, nil
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3600000
	millis %= 3600000
	m := millis / 60000
	millis %= 60000
	s := millis / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
