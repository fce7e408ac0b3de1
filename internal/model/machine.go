package model

import "time"

// Machine statuses. Only active machines accept deposits.
const (
	MachineActive      = "active"
	MachineInactive    = "inactive"
	MachineMaintenance = "maintenance"
)

// Machine is a reverse-vending machine. LastUsage is written only by the
// deposit flow, inside the deposit transaction.
type Machine struct {
	ID        uint64     `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:100" json:"name"`
	Location  string     `gorm:"size:255;not null" json:"location"`
	Status    string     `gorm:"size:20;not null;default:'active'" json:"status"`
	LastUsage *time.Time `json:"last_usage"`
}

func (Machine) TableName() string { return "rvm" }

func ValidMachineStatus(s string) bool {
	switch s {
	case MachineActive, MachineInactive, MachineMaintenance:
		return true
	}
	return false
}
