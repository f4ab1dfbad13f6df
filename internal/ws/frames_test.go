package ws

import (
	"encoding/json"

	"github.com/gogotex/gogotex/backend/collab-service/internal/protocol"
)

// decodeServerFrame parses frames the server emits; protocol.Decode only
// accepts client frames.
func decodeServerFrame(data []byte) (protocol.Frame, error) {
	var f protocol.Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
