package sequencer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"midiseq/track"
)

const takeStamp = "2006-01-02_15-04-05"

// TakeInfo is a saved recording (for listing)
type TakeInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// TakesDir returns the directory recordings are saved to
func TakesDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midiseq", "takes"), nil
}

// ListTakes returns the saved takes, newest first
func ListTakes() ([]TakeInfo, error) {
	dir, err := TakesDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TakeInfo{}, nil
		}
		return nil, err
	}

	var takes []TakeInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".mid") {
			continue
		}

		// 2024-01-15_14-30-00.mid or 2024-01-15_14-30-00_name.mid
		base := strings.TrimSuffix(name, ".mid")
		if len(base) < len(takeStamp) {
			continue
		}
		ts, err := time.ParseInLocation(takeStamp, base[:len(takeStamp)], time.Local)
		if err != nil {
			continue
		}
		takeName := ""
		if len(base) > len(takeStamp)+1 && base[len(takeStamp)] == '_' {
			takeName = base[len(takeStamp)+1:]
		}

		takes = append(takes, TakeInfo{
			Filename:  name,
			Name:      takeName,
			Timestamp: ts,
		})
	}

	sort.Slice(takes, func(i, j int) bool {
		if takes[i].Timestamp.Equal(takes[j].Timestamp) {
			return takes[i].Filename > takes[j].Filename
		}
		return takes[i].Timestamp.After(takes[j].Timestamp)
	})
	return takes, nil
}

// SaveTake writes the song to a new timestamped file and returns its path
func SaveTake(name string, s *track.Song) (string, error) {
	dir, err := TakesDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	filename := time.Now().Format(takeStamp)
	if name != "" {
		filename += "_" + sanitizeFilename(name)
	}
	path := filepath.Join(dir, filename+".mid")
	if err := track.WriteSMFFile(path, s); err != nil {
		return "", err
	}
	return path, nil
}

// LoadTake reads a saved take, the most recent one if filename is empty
func (m *Manager) LoadTake(filename string) error {
	dir, err := TakesDir()
	if err != nil {
		return err
	}
	if filename == "" {
		takes, err := ListTakes()
		if err != nil {
			return err
		}
		if len(takes) == 0 {
			return fmt.Errorf("no takes in %s", dir)
		}
		filename = takes[0].Filename
	}
	s, err := track.ReadSMFFile(filepath.Join(dir, filename), m.out, m.ctls)
	if err != nil {
		return err
	}
	m.Load(s)
	return nil
}

// DeleteTake removes a saved take
func DeleteTake(filename string) error {
	dir, err := TakesDir()
	if err != nil {
		return err
	}
	return os.Remove(filepath.Join(dir, filename))
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	name = strings.ReplaceAll(name, ":", "-")
	for _, c := range []string{"*", "?", "\"", "<", ">", "|"} {
		name = strings.ReplaceAll(name, c, "")
	}
	return name
}
