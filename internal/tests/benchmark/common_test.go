package benchmark

import (
	"fmt"
	"time"

	"github.com/twinisland/filebay/internal/core/domain"
)

// RecordCounts are the live-record scales benchmarked.
var RecordCounts = []int{1000, 10000, 100000}

// records builds n live records with distinct valid codes.
func records(n int) []domain.FileRecord {
	out := make([]domain.FileRecord, n)
	exp := time.Now().Add(time.Hour)
	for i := range out {
		out[i] = domain.FileRecord{
			ID:        uint64(i),
			Name:      fmt.Sprintf("file-%06d.bin", i),
			Size:      uint64(1024 + i),
			ExpiresAt: exp,
			Code:      domain.Code(100000 + i%900000),
		}
	}
	return out
}
