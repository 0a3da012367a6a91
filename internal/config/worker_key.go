package config

type WorkerKeyStruct struct {
	DispatchOTPQueue string
}

var WorkerKey = &WorkerKeyStruct{
	DispatchOTPQueue: "dispatch_otp_queue",
}
