package api

// User-facing flash messages.
const (
	msgInvalidReading     = "please enter valid numbers and date"
	msgReadingSaved       = "reading saved"
	msgReadingDeleted     = "reading deleted"
	msgNoFile             = "please choose a CSV or XLSX file to upload"
	msgFileUnreadable     = "the file could not be read; please upload a UTF-8 CSV or XLSX file"
	msgMalformedTable     = "the file needs a header row with sys, dia and pul columns"
	msgImported           = "%d readings imported"
	msgSkipped            = "%d rows skipped"
	msgUsernameTaken      = "username already taken"
	msgMissingCredentials = "please enter a username and password"
	msgRegistered         = "account created, please log in"
	msgInvalidCredentials = "invalid username or password"
	msgLoggedOut          = "you have been logged out"
	msgNotAuthorized      = "only the admin can delete accounts"
	msgSelfDelete         = "you cannot delete your own account"
	msgUserNotFound       = "user not found"
	msgUserDeleted        = "user deleted"
	msgInternal           = "something went wrong, please try again"
)
