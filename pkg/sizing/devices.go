package sizing

// DevicePowerKW is the rated power of each device type named by a use case
// device rule. Load-style types ("it-load-kw", "site-load-kw") take a kW
// quantity directly.
var DevicePowerKW = map[string]float64{
	"level2":       19.2,
	"dcfast-150":   150,
	"dcfast-350":   350,
	"it-load-kw":   1,
	"it-load-mw":   1000,
	"site-load-kw": 1,
}
