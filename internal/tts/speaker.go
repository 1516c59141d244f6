package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidSpeaker is returned for a profile that is not a JSON object.
var ErrInvalidSpeaker = errors.New("speaker profile must be a JSON object")

// SpeakerProfile is the service's representation of a reference voice. It is
// opaque to this package and passed back verbatim on generation.
type SpeakerProfile json.RawMessage

// MarshalJSON returns the profile unchanged.
func (p SpeakerProfile) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}

	return p, nil
}

// UnmarshalJSON stores a copy of data.
func (p *SpeakerProfile) UnmarshalJSON(data []byte) error {
	*p = append((*p)[0:0], data...)

	return nil
}

// Validate checks that the profile is a JSON object.
func (p SpeakerProfile) Validate() error {
	if len(p) == 0 {
		return ErrEmptySpeaker
	}

	var fields map[string]json.RawMessage

	err := json.Unmarshal(p, &fields)
	if err != nil || fields == nil {
		return ErrInvalidSpeaker
	}

	return nil
}

// LoadSpeaker reads a profile saved by SaveSpeaker.
func LoadSpeaker(path string) (SpeakerProfile, error) {
	var profile SpeakerProfile

	err := readJSONFile(path, &profile)
	if err != nil {
		return nil, err
	}

	err = profile.Validate()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return profile, nil
}

// SaveSpeaker writes the profile to path.
func SaveSpeaker(path string, profile SpeakerProfile) error {
	err := profile.Validate()
	if err != nil {
		return err
	}

	return writeJSONFile(path, profile)
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}
