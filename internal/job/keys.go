package job

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/zerverless/jobmarket/internal/db"
)

// Key layout inside the KV:
//
//	jobs/<20-digit id>          -> Job JSON
//	owners/<identity>/<role>    -> job id
//	assignments/<20-digit id>   -> worker identity
//	workers/<identity>          -> job id
//	meta/next_job_id            -> counter
const (
	prefixJobs        = "jobs/"
	prefixOwners      = "owners/"
	prefixAssignments = "assignments/"
	prefixWorkers     = "workers/"
	keyNextJobID      = "meta/next_job_id"
)

func jobKey(id JobID) string {
	return fmt.Sprintf("%s%020d", prefixJobs, id)
}

func ownerKey(owner Identity, role Role) string {
	return prefixOwners + url.PathEscape(string(owner)) + "/" + role.String()
}

func assignmentKey(id JobID) string {
	return fmt.Sprintf("%s%020d", prefixAssignments, id)
}

func workerKey(worker Identity) string {
	return prefixWorkers + url.PathEscape(string(worker))
}

func formatID(id JobID) []byte {
	return []byte(strconv.FormatUint(uint64(id), 10))
}

func parseID(b []byte) (JobID, error) {
	n, err := strconv.ParseUint(string(b), 10, 64)
	return JobID(n), err
}

// getID reads a job id stored under key; found is false when the key is absent.
func getID(txn db.Txn, key string) (id JobID, found bool, err error) {
	v, err := txn.Get(key)
	if db.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr(err, "read "+key)
	}
	id, err = parseID(v)
	if err != nil {
		return 0, false, storageErr(err, "decode "+key)
	}
	return id, true, nil
}

func getIdentity(txn db.Txn, key string) (Identity, bool, error) {
	v, err := txn.Get(key)
	if db.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr(err, "read "+key)
	}
	return Identity(v), true, nil
}

func nextJobID(txn db.Txn) (JobID, error) {
	id, found, err := getID(txn, keyNextJobID)
	if err != nil || !found {
		return 0, err
	}
	return id, nil
}

func getJob(txn db.Txn, id JobID) (*Job, error) {
	v, err := txn.Get(jobKey(id))
	if err != nil {
		// Every id below the counter has a record; a gap is corruption.
		return nil, storageErr(err, fmt.Sprintf("read job %d", id))
	}
	var j Job
	if err := json.Unmarshal(v, &j); err != nil {
		return nil, storageErr(err, fmt.Sprintf("decode job %d", id))
	}
	return &j, nil
}

func putJob(txn db.Txn, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return storageErr(err, "encode job")
	}
	if err := txn.Set(jobKey(j.ID), data); err != nil {
		return storageErr(err, fmt.Sprintf("write job %d", j.ID))
	}
	return nil
}

func set(txn db.Txn, key string, value []byte) error {
	if err := txn.Set(key, value); err != nil {
		return storageErr(err, "write "+key)
	}
	return nil
}

func del(txn db.Txn, key string) error {
	if err := txn.Delete(key); err != nil {
		return storageErr(err, "delete "+key)
	}
	return nil
}
