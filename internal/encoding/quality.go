package encoding

// GiB is one gibibyte in bytes.
const GiB int64 = 1 << 30

// Size thresholds of the compression ladder.
const (
	// EmergencyTrigger is the burn output size at which the emergency pass runs.
	EmergencyTrigger = 45 * GiB / 10
	// EmergencyReject is the emergency output size that aborts the stage.
	EmergencyReject = 48 * GiB / 10
	// AttachCeiling is the final size above which nothing is attached.
	AttachCeiling = 49 * GiB / 10
	// MinOutputBytes is the smallest plausible transcode output.
	MinOutputBytes int64 = 1_000_000
	// EmergencyCRF is the quality factor of the emergency pass.
	EmergencyCRF = 32
)

var qualityBrackets = []struct {
	maxBytes int64
	crf      int
}{
	{1 * GiB, 23},
	{2 * GiB, 25},
	{3 * GiB, 27},
	{4 * GiB, 29},
	{5 * GiB, 31},
	{6 * GiB, 33},
}

// MaxCRF is used for sources larger than every bracket.
const MaxCRF = 35

// QualityForSize picks the burn CRF for a source of the given size. Larger
// sources get more compression; bracket bounds are inclusive.
func QualityForSize(sizeBytes int64) int {
	for _, bracket := range qualityBrackets {
		if sizeBytes <= bracket.maxBytes {
			return bracket.crf
		}
	}
	return MaxCRF
}

// Thresholds parameterizes the ladder. The zero value is not usable; start
// from DefaultThresholds.
type Thresholds struct {
	EmergencyTrigger int64
	EmergencyReject  int64
	AttachCeiling    int64
	MinOutputBytes   int64
	EmergencyCRF     int
}

// DefaultThresholds returns the package constants as a Thresholds value.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EmergencyTrigger: EmergencyTrigger,
		EmergencyReject:  EmergencyReject,
		AttachCeiling:    AttachCeiling,
		MinOutputBytes:   MinOutputBytes,
		EmergencyCRF:     EmergencyCRF,
	}
}
