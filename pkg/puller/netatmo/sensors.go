package netatmo

import "github.com/flappah/netatmo2wow/pkg/models"

// ModuleKind describes a vendor hardware type
type ModuleKind struct {
	Name     string
	Location string
	// Family is what the module contributes to the reconciled series
	Family models.Family
}

var supportedModules = map[string]ModuleKind{
	"NAMain": {
		Name:     "Indoor Station",
		Location: "Indoor",
		Family:   models.FamilyPressure,
	},
	"NAModule1": {
		Name:     "Outdoor Module",
		Location: "Outdoor",
		Family:   models.FamilyTemperatureHumidity,
	},
	"NAModule2": {
		Name:     "Wind Gauge",
		Location: "Outdoor",
		Family:   models.FamilyWind,
	},
	"NAModule3": {
		Name:     "Rain Gauge",
		Location: "Outdoor",
		Family:   models.FamilyRain,
	},
	"NAModule4": {
		Name:     "Additional Indoor Module",
		Location: "Indoor",
		Family:   models.FamilyUnknown,
	},
}

// LookupModuleKind returns the description of a hardware type
func LookupModuleKind(moduleType string) (ModuleKind, bool) {
	k, ok := supportedModules[moduleType]
	return k, ok
}
