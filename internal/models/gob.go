package models

import (
	"encoding/gob"
	"time"
)

// badgerhold serializes with gob; concrete types carried inside the free-form
// config/metadata/payload maps must be registered or storage writes fail at
// runtime.
func init() {
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register([]map[string]interface{}{})
	gob.Register([]string{})
	gob.Register(time.Time{})
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(0.0)
	gob.Register(false)
}
