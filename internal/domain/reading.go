package domain

import (
	"encoding/json"
	"time"
)

// Reading is one parsed accelerometer sample. Values are immutable once
// constructed; Raw always holds the trimmed source line.
type Reading struct {
	Ax         float64
	Ay         float64
	Az         float64
	Raw        string
	ObservedAt time.Time
}

// readingJSON is the wire shape pushed to dashboards. ts is Unix milliseconds.
type readingJSON struct {
	Ax  float64 `json:"ax"`
	Ay  float64 `json:"ay"`
	Az  float64 `json:"az"`
	Raw string  `json:"raw"`
	TS  int64   `json:"ts"`
}

func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		Ax:  r.Ax,
		Ay:  r.Ay,
		Az:  r.Az,
		Raw: r.Raw,
		TS:  r.ObservedAt.UnixMilli(),
	})
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	var v readingJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Reading{
		Ax:         v.Ax,
		Ay:         v.Ay,
		Az:         v.Az,
		Raw:        v.Raw,
		ObservedAt: time.UnixMilli(v.TS),
	}
	return nil
}
