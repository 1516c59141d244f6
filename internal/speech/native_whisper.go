//go:build whisper

package speech

import (
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const nativeEnabled = true

func loadModel(path string) error {
	model, err := whisperlib.New(path)
	if err != nil {
		return err
	}

	return model.Close()
}
