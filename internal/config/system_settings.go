package config

import (
	"os"
	"strconv"
)

const DATABASE_TYPE = "DFLOW_DATABASE_TYPE"
const DATABASE_URL = "DFLOW_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "DFLOW_DATABASE_SQLLITE_FILE_NAME"
const ENGINE_SERVER_WEB_PORT = "DFLOW_ENGINE_SERVER_WEB_PORT"
const ENGINE_CHECK_DB_INTERVAL = "DFLOW_ENGINE_CHECK_DB_INTERVAL"
const ENGINE_STUCK_RUNS_INTERVAL = "DFLOW_ENGINE_STUCK_RUNS_INTERVAL"
const ENGINE_STUCK_RUNS_REPAIR_AFTER_MINUTES = "DFLOW_ENGINE_STUCK_RUNS_REPAIR_AFTER_MINUTES"
const ENGINE_BATCH_SIZE = "DFLOW_ENGINE_BATCH_SIZE"   //number of runs to pull from the database at a time
const ENGINE_WORKER_SIZE = "DFLOW_ENGINE_WORKER_SIZE" //number of workers, ie the parallel nature of the runs
const SECRET_KEY = "DFLOW_SECRET_KEY"                 //hex encoded 32 byte key for sealing secret variables

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

func GetSystemSettingInteger(settingKey string) int {
	val := GetSystemSettingString(settingKey)
	if val != "" {
		intValue, _ := strconv.Atoi(val)
		return intValue
	}

	return 0
}

func GetSystemSettingString(settingKey string) string {
	val := os.Getenv(settingKey)
	if val != "" {
		return val
	}
	if settingKey == ENGINE_CHECK_DB_INTERVAL {
		return "3s"
	}
	if settingKey == ENGINE_STUCK_RUNS_INTERVAL {
		return "60s"
	}
	if settingKey == ENGINE_BATCH_SIZE {
		return "5"
	}
	if settingKey == ENGINE_STUCK_RUNS_REPAIR_AFTER_MINUTES {
		return "5" // default to 5 minutes
	}
	if settingKey == ENGINE_WORKER_SIZE {
		return "5"
	}
	if settingKey == ENGINE_SERVER_WEB_PORT {
		return "8080"
	}
	if settingKey == DATABASE_SQLLITE_FILE_NAME {
		return "./driftflow.db"
	}
	return ""
}
