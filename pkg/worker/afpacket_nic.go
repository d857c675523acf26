package worker

import (
	"fmt"

	"github.com/google/gopacket/afpacket"
)

// afpacket block/frame sizing. 128 blocks of 1MiB give a deep enough
// ring to absorb a scheduling hiccup on a busy interface without the
// kernel starting to drop frames before userspace catches up.
const (
	afpacketFrameSize = 4096
	afpacketBlockSize = 1 << 20
	afpacketNumBlocks = 128
)

// afpacketNic reads and writes raw Ethernet frames on a Linux interface
// through an AF_PACKET ring (no TPACKET version is forced, so afpacket
// uses its default), the same mechanism the routing
// daemon's own dataplane counterpart uses for line-rate frame I/O.
type afpacketNic struct {
	name string
	tp   *afpacket.TPacket
}

// NewAfpacketNic opens a raw socket bound to the named interface.
func NewAfpacketNic(name string) (Nic, error) {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(name),
		afpacket.OptFrameSize(afpacketFrameSize),
		afpacket.OptBlockSize(afpacketBlockSize),
		afpacket.OptNumBlocks(afpacketNumBlocks),
	)
	if err != nil {
		return nil, fmt.Errorf("worker: open raw socket on %s: %w", name, err)
	}
	return &afpacketNic{name: name, tp: tp}, nil
}

func (n *afpacketNic) Name() string { return n.name }

// ReadBatch drains up to max frames currently available without
// blocking past the first read. It always returns at least one frame
// on success; ReadPacketData itself blocks until one arrives.
func (n *afpacketNic) ReadBatch(max int) ([][]byte, error) {
	bufs := make([][]byte, 0, max)
	for len(bufs) < max {
		data, _, err := n.tp.ReadPacketData()
		if err != nil {
			if len(bufs) > 0 {
				return bufs, nil
			}
			return nil, err
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		bufs = append(bufs, cp)
	}
	return bufs, nil
}

func (n *afpacketNic) Write(buf []byte) error {
	_, err := n.tp.WritePacketData(buf)
	return err
}

func (n *afpacketNic) Close() error {
	n.tp.Close()
	return nil
}
