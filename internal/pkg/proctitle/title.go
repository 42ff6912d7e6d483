package proctitle

// ForRole names the process after what it runs so replicas are easy to tell
// apart in ps and top. Linux truncates titles to 15 bytes.
func ForRole(runsWorker bool) string {
	if runsWorker {
		return "vocalingo-all"
	}
	return "vocalingo-api"
}
