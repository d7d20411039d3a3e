package log

// Field keys used across packages.
const (
	LoggerNameKey = "logger"
	ModelNameKey  = "model"
	ComponentKey  = "component"
	OperationKey  = "operation"
	PhaseKey      = "phase"
	SamplesKey    = "samples"
	FeaturesKey   = "features"
	BatchesKey    = "batches"
	BatchSizeKey  = "batch_size"
	CycleKey      = "cycle"
	CyclesKey     = "training_cycles"
	TrainLossKey  = "train_loss"
	TestLossKey   = "test_loss"
	TrainAccKey   = "train_accuracy"
	TestAccKey    = "test_accuracy"
	MetricNameKey = "metric"
	GPUMemoryKey  = "gpu_memory"
	DeviceKey     = "device"
	PathKey       = "path"
	DurationMsKey = "duration_ms"
	FullEpochKey  = "full_epoch"
	SnapshotsKey  = "snapshots"
	VarianceKey   = "variance"
	PredsKey      = "predictions"
	ErrorKey      = "error"
)

// Operation values for OperationKey.
const (
	OperationCompile  = "compile"
	OperationFit      = "fit"
	OperationEvaluate = "evaluate"
	OperationSave     = "save"
	OperationAverage  = "swa"
	OperationPerturb  = "perturb"
	OperationPlot     = "plot"
	OperationPredict  = "predict"
)

// Phase values for PhaseKey.
const (
	PhaseTraining  = "training"
	PhaseInference = "inference"
	PhaseFinalize  = "finalize"
)
