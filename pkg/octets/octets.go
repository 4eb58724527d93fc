// Package octets derives the family of /24 block addresses that precede a
// device's own block in the site numbering plan.
package octets

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andrej220/routerconfig/pkg/models"
)

var ErrMalformedAddress = errors.New("malformed address")

// blocks is how many /24 blocks below the device block are derived.
const blocks = 3

// Derive zeroes the 4th octet of addr (Octet3) and steps the 3rd octet down
// once per derived address (Octet2, Octet1, Octet0). A 3rd octet that would
// go negative is an error, not a wrap.
func Derive(addr string) (models.OctetFamily, error) {
	var fam models.OctetFamily

	parts := strings.Split(strings.TrimSpace(addr), ".")
	if len(parts) != 4 {
		return fam, fmt.Errorf("%w: %q has %d octets", ErrMalformedAddress, addr, len(parts))
	}
	var oct [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return fam, fmt.Errorf("%w: %q octet %d is %q", ErrMalformedAddress, addr, i+1, p)
		}
		oct[i] = n
	}
	if oct[2] < blocks {
		return fam, fmt.Errorf("%w: %q third octet %d leaves no room for %d preceding blocks",
			ErrMalformedAddress, addr, oct[2], blocks)
	}

	join := func(third int) string {
		return fmt.Sprintf("%d.%d.%d.0", oct[0], oct[1], third)
	}
	fam.Octet3 = join(oct[2])
	fam.Octet2 = join(oct[2] - 1)
	fam.Octet1 = join(oct[2] - 2)
	fam.Octet0 = join(oct[2] - 3)
	return fam, nil
}
