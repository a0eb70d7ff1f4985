package schedule

// RemarksRule is one nested sub-policy of OvertimePolicy: when the rule is
// enabled, threshold crossings can force the employee to attach remarks at
// checkout. A zero ThresholdMinutes means the threshold is unset, which is a
// distinct state from "rule disabled" but has the same effect on the remarks
// contract: absence of configuration never silently requires input.
type RemarksRule struct {
	Enabled          bool `json:"enabled"`
	ThresholdMinutes int  `json:"threshold_minutes"`
	MandatoryRemarks bool `json:"mandatory_remarks"`
	RemarksMinLength int  `json:"remarks_min_length"`
	RemarksMaxLength int  `json:"remarks_max_length"`
}

// OvertimePolicy is the nested per-site policy controlling overtime and
// early-checkout handling. It is stored as JSON on the site row and treated
// as a plain value struct, not a dynamic map.
type OvertimePolicy struct {
	Enabled           bool        `json:"enabled"`
	Overtime          RemarksRule `json:"overtime"`
	EarlyCheckout     RemarksRule `json:"early_checkout"`
	WeekendMultiplier float64     `json:"weekend_multiplier"`
	HolidayMultiplier float64     `json:"holiday_multiplier"`
}

// DefaultOvertimePolicy is the conservative policy applied when a site has no
// policy configured: overtime tracking on with a one-hour threshold, no
// mandatory remarks anywhere.
func DefaultOvertimePolicy() OvertimePolicy {
	return OvertimePolicy{
		Enabled: true,
		Overtime: RemarksRule{
			Enabled:          true,
			ThresholdMinutes: 60,
			MandatoryRemarks: false,
			RemarksMinLength: 10,
			RemarksMaxLength: 500,
		},
		EarlyCheckout: RemarksRule{
			Enabled:          true,
			ThresholdMinutes: 480,
			MandatoryRemarks: false,
			RemarksMinLength: 10,
			RemarksMaxLength: 500,
		},
		WeekendMultiplier: 1.5,
		HolidayMultiplier: 2.0,
	}
}

// RequiresOvertimeRemarks reports whether a checkout with the given overtime
// minutes must carry remarks under this policy. Disabled policies or unset
// thresholds never require input.
func (p OvertimePolicy) RequiresOvertimeRemarks(overtimeMinutes int) bool {
	if !p.Enabled || !p.Overtime.Enabled || !p.Overtime.MandatoryRemarks {
		return false
	}
	if p.Overtime.ThresholdMinutes <= 0 {
		return false
	}
	return overtimeMinutes >= p.Overtime.ThresholdMinutes
}

// RequiresEarlyCheckoutRemarks reports whether a checkout that produced the
// given work duration must carry remarks. The rule fires when the shift was
// cut short of the configured duration threshold.
func (p OvertimePolicy) RequiresEarlyCheckoutRemarks(workDurationMinutes int) bool {
	if !p.Enabled || !p.EarlyCheckout.Enabled || !p.EarlyCheckout.MandatoryRemarks {
		return false
	}
	if p.EarlyCheckout.ThresholdMinutes <= 0 {
		return false
	}
	return workDurationMinutes < p.EarlyCheckout.ThresholdMinutes
}
