package datasets

import (
	"bytes"
	"fmt"
	"time"
)

const sampleName = "Household energy readings (sample)"

var sampleCities = []string{"Medellin", "Bogota", "Cali", "Barranquilla"}

// sampleCSV renders a deterministic demo dataset: one reading per household
// per day over two months, with a PII name and email column.
func sampleCSV() []byte {
	var buf bytes.Buffer
	buf.WriteString("household_name,email,city,date,kwh,steps,smart_meter\n")

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 60; day++ {
		date := start.AddDate(0, 0, day).Format("2006-01-02")
		for h := 1; h <= 5; h++ {
			kwh := float64(8+(h*7+day*3)%17) + float64((h+day)%10)/10
			steps := ""
			if (h+day)%11 != 0 {
				steps = fmt.Sprint(3000 + (h*1301+day*577)%9000)
			}
			fmt.Fprintf(&buf, "Household %d,household%d@example.org,%s,%s,%.1f,%s,%t\n",
				h, h, sampleCities[h%len(sampleCities)], date, kwh, steps, h%2 == 1)
		}
	}
	return buf.Bytes()
}
