package flash

import (
	"context"
	"time"

	"github.com/buckleypaul/surge/internal/device"
	"github.com/buckleypaul/surge/internal/firmware"
	"github.com/buckleypaul/surge/internal/transport"
)

// Strategy flashes one device family. Prepare validates everything that can
// fail before the tool runs; Execute drives the tool and reports progress.
type Strategy interface {
	Family() device.Family
	Prepare(ctx context.Context, t transport.Transport, art firmware.Artifact) (*Ready, error)
	Execute(ctx context.Context, ready *Ready, rep Reporter) error
}

// Ready is a validated upload plan produced by Prepare. Everything Execute
// needs is resolved here so Execute itself only runs the tool.
type Ready struct {
	Transport transport.Transport
	Artifact  firmware.Artifact

	Tool string
	Args []string

	Baud         int
	FullErase    bool
	PhaseTimeout time.Duration
}
