package matchinfo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/mblakley/soccer-cam/internal/fileutil"
	"github.com/mblakley/soccer-cam/internal/services"
)

const (
	FileName = "match_info.ini"
	Section  = "MATCH"
)

// INI keys.
const (
	KeyTeam          = "my_team_name"
	KeyOpponent      = "opponent_team_name"
	KeyLocation      = "location"
	KeyStartOffset   = "start_time_offset"
	KeyEndOffset     = "end_time_offset"
	KeyTotalDuration = "total_duration"
)

// Info is the [MATCH] section.
type Info struct {
	Team          string
	Opponent      string
	Location      string
	StartOffset   string
	EndOffset     string
	TotalDuration string
}

// Path returns the match info file inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads dir/match_info.ini. A missing file returns exists=false and no
// error.
func Load(dir string) (Info, bool, error) {
	file, err := loadFile(Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, false, nil
		}
		return Info{}, true, err
	}
	section := file.Section(Section)
	return Info{
		Team:          strings.TrimSpace(section.Key(KeyTeam).String()),
		Opponent:      strings.TrimSpace(section.Key(KeyOpponent).String()),
		Location:      strings.TrimSpace(section.Key(KeyLocation).String()),
		StartOffset:   strings.TrimSpace(section.Key(KeyStartOffset).String()),
		EndOffset:     strings.TrimSpace(section.Key(KeyEndOffset).String()),
		TotalDuration: strings.TrimSpace(section.Key(KeyTotalDuration).String()),
	}, true, nil
}

// Save writes info into dir/match_info.ini, keeping any keys and sections it
// does not manage.
func Save(dir string, info Info) error {
	path := Path(dir)
	file, err := loadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		file = ini.Empty()
	}
	section := file.Section(Section)
	section.Key(KeyTeam).SetValue(info.Team)
	section.Key(KeyOpponent).SetValue(info.Opponent)
	section.Key(KeyLocation).SetValue(info.Location)
	section.Key(KeyStartOffset).SetValue(info.StartOffset)
	section.Key(KeyEndOffset).SetValue(info.EndOffset)
	section.Key(KeyTotalDuration).SetValue(info.TotalDuration)

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := fileutil.WriteAtomic(path, buf.Bytes(), 0o644); err != nil {
		return services.Wrap(services.ErrTransientIO, "awaiting_match_info", "save", path, err)
	}
	return nil
}

// EnsureTemplate writes an empty [MATCH] section when no file exists yet so
// the operator has something to fill in. It reports whether it created one.
func EnsureTemplate(dir string, prefill Info) (bool, error) {
	if _, err := os.Stat(Path(dir)); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, Save(dir, prefill)
}

func loadFile(path string) (*ini.File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	file, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "awaiting_match_info", "parse", path, err)
	}
	return file, nil
}

// Missing lists the required keys that are blank.
func (i Info) Missing() []string {
	var missing []string
	if i.Team == "" {
		missing = append(missing, KeyTeam)
	}
	if i.Opponent == "" {
		missing = append(missing, KeyOpponent)
	}
	if i.Location == "" {
		missing = append(missing, KeyLocation)
	}
	return missing
}

// Populated reports whether the group may leave awaiting_match_info.
func (i Info) Populated() bool {
	return len(i.Missing()) == 0
}

// Static reports whether an explicit start offset selects static boundaries.
func (i Info) Static() bool {
	return i.StartOffset != ""
}

// GameLength returns total_duration, or fallback when blank. The value is
// HH:MM:SS or MM:SS, or a bare number of minutes.
func (i Info) GameLength(fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(i.TotalDuration)
	if value == "" {
		return fallback, nil
	}
	if strings.Contains(value, ":") {
		length, err := ParseOffset(value)
		if err != nil || length <= 0 {
			return 0, services.Wrap(services.ErrConfiguration, "resolving_boundaries", KeyTotalDuration,
				fmt.Sprintf("invalid value %q", i.TotalDuration), err)
		}
		return length, nil
	}
	minutes, err := strconv.ParseFloat(value, 64)
	if err != nil || minutes <= 0 {
		return 0, services.Wrap(services.ErrConfiguration, "resolving_boundaries", KeyTotalDuration,
			fmt.Sprintf("invalid value %q", i.TotalDuration), err)
	}
	return time.Duration(minutes * float64(time.Minute)), nil
}

// ParseOffset accepts MM:SS or HH:MM:SS. Minutes may exceed 59 in the two
// field form.
func ParseOffset(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: offset %q must be MM:SS or HH:MM:SS", services.ErrConfiguration, value)
	}
	nums := make([]int, len(parts))
	for idx, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: offset %q has invalid field %q", services.ErrConfiguration, value, part)
		}
		nums[idx] = n
	}
	var h, m, s int
	if len(nums) == 3 {
		h, m, s = nums[0], nums[1], nums[2]
		if m > 59 {
			return 0, fmt.Errorf("%w: offset %q minutes out of range", services.ErrConfiguration, value)
		}
	} else {
		m, s = nums[0], nums[1]
	}
	if s > 59 {
		return 0, fmt.Errorf("%w: offset %q seconds out of range", services.ErrConfiguration, value)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, nil
}

// FormatOffset renders d as MM:SS below an hour and HH:MM:SS otherwise.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
