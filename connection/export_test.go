package connection

var ConvertSQLValue = convertSQLValue
var TrackTransaction = trackTransaction
