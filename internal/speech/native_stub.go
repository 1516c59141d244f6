//go:build !whisper

package speech

const nativeEnabled = false

func loadModel(string) error {
	return ErrNativeUnavailable
}
