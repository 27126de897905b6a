package identity

var RunStoreContract = runStoreContract
