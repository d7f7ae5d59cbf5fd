package document

import "encoding/gob"

// Metadata values travel inside an any, so gob needs the canonical
// concrete types registered for index persistence.
func init() {
	gob.Register("")
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]string(nil))
}
