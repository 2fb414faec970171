package constant

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
	JobStatusPoison  JobStatus = "poison"
)

func (s JobStatus) String() string {
	return string(s)
}

// Valid reports whether s is a status a worker may report back.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusDone, JobStatusError:
		return true
	}
	return false
}

type JobType string

const (
	JobTypeAlbumGif     JobType = "album_gif"
	JobTypeShelfVideo   JobType = "shelf_video"
	JobTypeCoverMontage JobType = "cover_montage"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

const (
	HeaderWorkerKey = "X-WORKER-KEY"

	DefaultMaxAttempts  = 3
	DefaultStuckMinutes = 5
	DefaultListLimit    = 50
	MaxListLimit        = 200
)
