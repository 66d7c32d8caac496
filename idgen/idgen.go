package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"os"
	"strconv"

	"github.com/fundwit/go-commons/types"
	"github.com/sony/sonyflake"
)

// NewWorker builds a sonyflake generator. The machine id comes from MACHINE_ID when set, then from the
// private ipv4 address, and finally from random bits so hosts without a private address still start.
func NewWorker() *sonyflake.Sonyflake {
	return sonyflake.NewSonyflake(sonyflake.Settings{MachineID: machineID})
}

func NextID(idWorker *sonyflake.Sonyflake) types.ID {
	id, err := idWorker.NextID()
	if err != nil {
		panic(err)
	}
	return types.ID(id)
}

func machineID() (uint16, error) {
	if v := os.Getenv("MACHINE_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return 0, err
		}
		return uint16(id), nil
	}
	if id, err := lower16BitPrivateIP(); err == nil {
		return id, nil
	}
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
