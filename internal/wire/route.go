package wire

import (
	"strings"

	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

// RouteTrailer renders the "\nRoute: uuid1->uuid2->...->self\n" suffix
// appended after a locally-handled response.
func RouteTrailer(previousNodes []uuid.UUID, self uuid.UUID) string {
	hops := make([]string, 0, len(previousNodes)+1)
	for _, id := range previousNodes {
		hops = append(hops, id.String())
	}
	hops = append(hops, self.String())

	var b strings.Builder
	b.WriteString(constants.RouteTrailerPrefix)
	b.WriteString(strings.Join(hops, constants.RouteArrow))
	b.WriteByte('\n')
	return b.String()
}
