package jobrun

const (
	WorkflowName    = "job_run"
	ActivityExecute = "job_run_execute"
)

// Result is the job row's state after one activity execution.
type Result struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Stage  string `json:"stage,omitempty"`
	Error  string `json:"error,omitempty"`
}
