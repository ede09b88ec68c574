package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Building{},
}

// Building is one building document. Usage and waste histories are stored
// as JSON arrays, mirroring the document layout the dashboard reads.
type Building struct {
	ID               string         `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	Name             string         `json:"name" gorm:"size:255"`
	Address          string         `json:"address" gorm:"size:255"`
	YearBuilt        int            `json:"yearBuilt"`
	SquareFootage    float64        `json:"squareFootage"`
	ImageURL         string         `json:"imageURL" gorm:"size:1024"`
	ElectricityUsage datatypes.JSON `json:"electricityUsage"`
	NaturalGasUsage  datatypes.JSON `json:"naturalGasUsage"`
	WasteGeneration  datatypes.JSON `json:"wasteGeneration"`
}

func (*Building) TableName() string {
	return "buildings"
}
