package domain

// Internal units differ from the standard form agreed with the sibling
// modules: heights are cm (standard form: m), pressures are 0.1 Pa
// (standard form: Pa). Import converts standard form to internal units,
// Export the other way.

func ImportHeight(meters float64) float64 { return meters * 1e2 }

func ExportHeight(cm float64) float64 { return cm / 1e2 }

func ImportPressure(pa float64) float64 { return pa * 1e1 }

func ExportPressure(deciPa float64) float64 { return deciPa / 1e1 }
