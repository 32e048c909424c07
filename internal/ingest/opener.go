package ingest

import (
	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/pkg/netcdf"
)

// NetCDFOpener opens uploads with the netCDF C library reader.
var NetCDFOpener geodata.Opener = geodata.OpenerFunc(func(path string) (geodata.Dataset, error) {
	f, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
})
