package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/cave-device/internal/config"
	"github.com/oshokin/cave-device/internal/domain/cave"
)

// Snapshot field names in the state file.
const (
	fieldSavedAt     = "savedAt"
	fieldTemperature = "currentTemperature"
	fieldHumidity    = "currentHumidity"
	fieldFan         = "fan"
)

// Repository defines persistence operations for the cave snapshot.
type Repository interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}

// Snapshot is the restorable part of cave.State. Ambient values and
// setpoints always come from configuration.
type Snapshot struct {
	// SavedAt is when the snapshot was taken.
	SavedAt time.Time
	// CurrentTemperature is the last temperature reading.
	CurrentTemperature float64
	// CurrentHumidity is the last humidity reading.
	CurrentHumidity float64
	// Fan is the last fan state.
	Fan cave.FanState
}

// FromState captures the restorable part of st.
func FromState(st cave.State, at time.Time) *Snapshot {
	return &Snapshot{
		SavedAt:            at,
		CurrentTemperature: st.CurrentTemperature,
		CurrentHumidity:    st.CurrentHumidity,
		Fan:                st.Fan,
	}
}

// Apply writes the snapshot into st and re-clamps humidity.
func (s *Snapshot) Apply(st *cave.State) {
	st.CurrentTemperature = s.CurrentTemperature
	st.CurrentHumidity = s.CurrentHumidity
	st.Fan = s.Fan
	st.ClampHumidity()
}

// FileRepository persists the snapshot to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the state file does not exist yet.
	ErrNotFound = errors.New("state not found")
	// errMalformedState is returned for files missing required fields.
	errMalformedState = errors.New("malformed state file")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the snapshot from disk.
func (r *FileRepository) Load(_ context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc structpb.Struct
	if err = protojson.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return fromProto(&doc)
}

// Save writes the snapshot to disk using JSON representation.
func (r *FileRepository) Save(_ context.Context, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
	}

	data, err := marshalOptions.Marshal(toProto(snapshot))
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}

// fromProto converts the stored document into a Snapshot.
func fromProto(doc *structpb.Struct) (*Snapshot, error) {
	fields := doc.GetFields()

	temperature, okT := fields[fieldTemperature].GetKind().(*structpb.Value_NumberValue)
	humidity, okH := fields[fieldHumidity].GetKind().(*structpb.Value_NumberValue)

	if !okT || !okH {
		return nil, fmt.Errorf("%w: readings are required", errMalformedState)
	}

	fan, err := cave.ParseFanState(fields[fieldFan].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedState, err)
	}

	var savedAt time.Time
	if raw := fields[fieldSavedAt].GetStringValue(); raw != "" {
		savedAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformedState, err)
		}
	}

	return &Snapshot{
		SavedAt:            savedAt,
		CurrentTemperature: temperature.NumberValue,
		CurrentHumidity:    humidity.NumberValue,
		Fan:                fan,
	}, nil
}

// toProto converts a Snapshot into the stored document.
func toProto(s *Snapshot) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldTemperature: structpb.NewNumberValue(s.CurrentTemperature),
		fieldHumidity:    structpb.NewNumberValue(s.CurrentHumidity),
		fieldFan:         structpb.NewStringValue(s.Fan.String()),
	}

	if !s.SavedAt.IsZero() {
		fields[fieldSavedAt] = structpb.NewStringValue(s.SavedAt.UTC().Format(time.RFC3339Nano))
	}

	return &structpb.Struct{Fields: fields}
}
