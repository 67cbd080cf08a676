package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/02loveslollipop/sensorthings-metadata/internal/atomicfile"
	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

// State maps datastream ids to the signature seen in the last run.
type State map[string]string

// Store loads and persists State.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps State as an indented JSON object in a single file.
type FileStore struct {
	Path   string
	Logger *slog.Logger
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{Path: path, Logger: logger}
}

// Load reads the state file. A missing, empty or corrupt file is an empty
// state; a file that exists but cannot be read is a StateReadError.
func (s *FileStore) Load() (State, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, nil
		}
		return nil, &models.StateReadError{Path: s.Path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return State{}, nil
	}

	state, ok := decodeState(data)
	if !ok {
		s.logger().Warn("state file is corrupt, starting from empty state", "path", s.Path)
		return State{}, nil
	}
	return state, nil
}

// decodeState accepts the flat {"id": "sig"} layout and the older
// {"signatures": {...}} envelope.
func decodeState(data []byte) (State, bool) {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err == nil {
		if flat == nil {
			return State{}, true
		}
		return State(flat), true
	}

	var envelope struct {
		Signatures map[string]string `json:"signatures"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Signatures != nil {
		return State(envelope.Signatures), true
	}
	return nil, false
}

// Save replaces the state file atomically.
func (s *FileStore) Save(state State) error {
	if state == nil {
		state = State{}
	}
	if err := atomicfile.WriteJSON(s.Path, state); err != nil {
		return &models.StateWriteError{Path: s.Path, Err: err}
	}
	return nil
}

func (s *FileStore) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
