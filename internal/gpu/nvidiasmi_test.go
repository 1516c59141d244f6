package gpu_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/voice-bootstrap/internal/core"
	"github.com/book-expert/voice-bootstrap/internal/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockSMI = errors.New("nvidia-smi: command not found")

const banner = `+-----------------------------------------------------------------------------------------+
| NVIDIA-SMI 560.35.03              Driver Version: 560.35.03      CUDA Version: 12.6     |
|-----------------------------------------+------------------------+----------------------+`

type smiRunner struct {
	queryOut  string
	queryErr  error
	bannerErr error
}

func (r *smiRunner) Run(_ context.Context, cmd core.Command) ([]byte, error) {
	if len(cmd.Args) == 0 {
		return []byte(banner), r.bannerErr
	}

	return []byte(r.queryOut), r.queryErr
}

func TestSMIQuerier(t *testing.T) {
	t.Parallel()

	runner := &smiRunner{queryOut: "0, NVIDIA GeForce RTX 4090\n1, NVIDIA RTX A6000\n\n"}

	info, err := gpu.NewSMIQuerier(runner, "", nil).QueryDevices(context.Background())
	require.NoError(t, err)

	assert.True(t, info.Available)
	assert.Equal(t, []string{"NVIDIA GeForce RTX 4090", "NVIDIA RTX A6000"}, info.Names)
	assert.Equal(t, "12.6", info.CUDAVersion)
}

func TestSMIQuerier_NoDevices(t *testing.T) {
	t.Parallel()

	info, err := gpu.NewSMIQuerier(&smiRunner{bannerErr: errMockSMI}, "", nil).QueryDevices(context.Background())
	require.NoError(t, err)

	assert.False(t, info.Available)
	assert.Zero(t, info.Count())
	assert.Empty(t, info.CUDAVersion)
}

func TestSMIQuerier_Failure(t *testing.T) {
	t.Parallel()

	_, err := gpu.NewSMIQuerier(&smiRunner{queryErr: errMockSMI}, "", nil).QueryDevices(context.Background())
	require.ErrorIs(t, err, errMockSMI)
}
