package types

// KPI holds the scalar metrics reported by the current-status endpoint.
type KPI struct {
	TotalConsumptionKWH       float64 `json:"total_consumption_kwh"`
	SolarAvailableForUseKWH   float64 `json:"solar_available_for_use_kwh"`
	GridImportKWH             float64 `json:"grid_import_kwh"`
	Battery1EnergyStoredKWH   float64 `json:"battery_1_energy_stored_kwh"`
	Battery2EnergyStoredKWH   float64 `json:"battery_2_energy_stored_kwh"`
	ElectricityPriceUSDPerKWH float64 `json:"electricity_price_usd_per_kwh"`
}

// EnergyMix breaks down consumption by load type.
type EnergyMix struct {
	HVACEnergyKWH          float64 `json:"hvac_energy_kwh"`
	RefrigerationEnergyKWH float64 `json:"refrigeration_energy_kwh"`
	LightingEnergyKWH      float64 `json:"lighting_energy_kwh"`
	ITSystemKWH            float64 `json:"it_system_kwh"`
	OtherSystemKWH         float64 `json:"other_system_kwh"`
}

// CurrentStatus is the snapshot returned by /current-status. Timestamps are
// kept as the API sends them since it does not always include a zone.
type CurrentStatus struct {
	Timestamp   string    `json:"timestamp"`
	CurrentKPIs KPI       `json:"current_kpis"`
	EnergyMix   EnergyMix `json:"energy_mix"`
}

// NextHourForecast is the forecast for the upcoming hour.
type NextHourForecast struct {
	Timestamp                 string  `json:"timestamp"`
	BaseConsumptionKWH        float64 `json:"base_consumption_kwh"`
	SolarBatteryForUseKWH     float64 `json:"solar_battery_for_use_kwh"`
	GridImportKWH             float64 `json:"grid_import_kwh"`
	ElectricityPriceUSDPerKWH float64 `json:"electricity_price_usd_per_kwh"`
}

// AggregateForecast is a day or week total.
type AggregateForecast struct {
	BaseConsumptionKWH  float64 `json:"base_consumption_kwh"`
	TotalUsefulSolarKWH float64 `json:"total_useful_solar_kwh"`
}

// Forecast is the payload of /forecast.
type Forecast struct {
	NextHour   NextHourForecast  `json:"next_hour_forecast"`
	TodayTotal AggregateForecast `json:"today_total_forecast"`
	WeekTotal  AggregateForecast `json:"week_total_forecast"`
}

// AggregationLevel controls the granularity of historical data.
type AggregationLevel string

const (
	AggregationHourly AggregationLevel = "hourly"
	AggregationDaily  AggregationLevel = "daily"
)

// Valid reports whether the level is one the API accepts.
func (a AggregationLevel) Valid() bool {
	return a == AggregationHourly || a == AggregationDaily
}

// HistoricalDataPoint is one row of /historical-data. Daily rows populate the
// Daily* fields and Date, hourly rows populate Timestamp and the (t) fields.
type HistoricalDataPoint struct {
	// Daily aggregation
	Date                              string  `json:"date,omitempty"`
	DailyTotalEnergyUsageKWH          float64 `json:"Daily_Total_Energy_Usage_kWh,omitempty"`
	DailySolarAvailableForUseKWH      float64 `json:"Daily_Solar_Available_for_Use_kWh,omitempty"`
	DailyAvgElectricityPriceUSDPerKWH float64 `json:"Daily_Avg_Electricity_Price_USD_per_kWh,omitempty"`
	DailyHVACEnergyKWH                float64 `json:"Daily_HVAC_Energy_kWh,omitempty"`
	DailyRefrigerationEnergyKWH       float64 `json:"Daily_Refrigeration_Energy_kWh,omitempty"`
	DailyLightingEnergyKWH            float64 `json:"Daily_Lighting_Energy_kWh,omitempty"`
	DailyITSystemEnergyKWH            float64 `json:"Daily_IT_System_Energy_kWh,omitempty"`
	DailyOtherSystemEnergyKWH         float64 `json:"Daily_Other_System_Energy_kWh,omitempty"`
	DailySolarUsedToChargeBatteryKWH  float64 `json:"Daily_Solar_Used_to_Charge_Battery_kWh,omitempty"`
	DailyBattery1AverageCharge        float64 `json:"Daily_Battery_1_average_charge,omitempty"`
	DailyBattery2AverageCharge        float64 `json:"Daily_Battery_2_average_charge,omitempty"`

	// Hourly aggregation
	Timestamp                string  `json:"timestamp,omitempty"`
	HVACEnergy               float64 `json:"HVAC_Energy(t),omitempty"`
	RefrigerationEnergy      float64 `json:"Refrigeration_Energy(t),omitempty"`
	LightingEnergy           float64 `json:"Lighting_Energy(t),omitempty"`
	ITSystem                 float64 `json:"IT_System(t),omitempty"`
	OtherSystem              float64 `json:"Other_System(t),omitempty"`
	SolarAvailableForUse     float64 `json:"Solar_Available_for_Use(t),omitempty"`
	SolarUsedToChargeBattery float64 `json:"Solar_Used_to_Charge_Battery(t),omitempty"`
	Battery1ChargeDischarge  float64 `json:"Battery_1_Charge_Discharge(t),omitempty"`
	Battery2ChargeDischarge  float64 `json:"Battery_2_Charge_Discharge(t),omitempty"`
	TotalEnergy              float64 `json:"Total_Energy(t),omitempty"`
	ElectricityPrice         float64 `json:"Electricity_Price(t),omitempty"`
}
