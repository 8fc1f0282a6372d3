package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/postalcrawl/internal/model"
)

// SRID of stored points (WGS 84).
const SRID = 4326

// EncodeLocation returns the EWKB point for a resolved address, or nil for a miss.
func EncodeLocation(res *model.ResolvedAddress) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{res.Longitude, res.Latitude}).SetSRID(SRID)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode location")
	}
	return data, nil
}

// DecodeLocation parses an EWKB point into longitude and latitude.
func DecodeLocation(data []byte) (lon, lat float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "store: decode location")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("store: location is %T, not a point", g)
	}
	return p.X(), p.Y(), nil
}
